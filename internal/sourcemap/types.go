package sourcemap

// ParsedFrame represents a single stack frame parsed from a stack trace
type ParsedFrame struct {
	// Function name, empty when the frame is anonymous
	Name string `json:"name"`
	// Script URL or path as it appears in the stack line
	SourceFile string `json:"source_file"`
	// Generated line number (1-based as printed by the runtime), 0 if unknown
	Line uint32 `json:"line"`
	// Generated column number as printed by the runtime
	Column uint32 `json:"column"`
	// The trimmed line the frame was parsed from
	Raw string `json:"original_raw"`
}

// ErrorStack is an error message followed by the frames parsed from the lines below it
type ErrorStack struct {
	Message string        `json:"error_message"`
	Frames  []ParsedFrame `json:"stacks"`
}

// OriginalPosition is the result of a position lookup against a mapping
type OriginalPosition struct {
	// Original line (0-based)
	Line uint32 `json:"line"`
	// Original column (0-based)
	Column uint32 `json:"column"`
	// Original source path, nil when the mapping segment has none
	Source *string `json:"src"`
	// Full original source text, nil when the mapping carries no content for Source
	SourceText *string `json:"source_code"`
	// Original symbol name, if the mapping recorded one
	Name string `json:"name,omitempty"`
}

// ContextLine is one line of a context window
type ContextLine struct {
	Line     uint32 `json:"line"`
	IsTarget bool   `json:"is_stack_line"`
	Code     string `json:"raw"`
}

// ResolvedToken is an original position together with its surrounding source lines
type ResolvedToken struct {
	Line    uint32        `json:"line"`
	Column  uint32        `json:"column"`
	Source  string        `json:"src"`
	Context []ContextLine `json:"source_code"`
}

// FrameToken is a batch success tagged with the index of the frame it came from
type FrameToken struct {
	Frame int `json:"frame"`
	ResolvedToken
}

// ResolutionFailure records why a frame could not be resolved in a batch
type ResolutionFailure struct {
	Frame  int       `json:"frame"`
	Raw    string    `json:"original_raw"`
	Reason string    `json:"error_message"`
	Kind   ErrorKind `json:"kind"`
}

// BatchResult is the outcome of ResolveBatch
type BatchResult struct {
	Frames    []ParsedFrame       `json:"stacks"`
	Successes []FrameToken        `json:"success"`
	Failures  []ResolutionFailure `json:"fail"`
}

// MappedErrorStack is the outcome of Mapper.ResolveErrorStack. Exactly one of
// Basic and WithContext is populated, depending on whether a radius was given.
type MappedErrorStack struct {
	Message     string             `json:"error_message"`
	Basic       []OriginalPosition `json:"frames"`
	WithContext []ResolvedToken    `json:"frames_with_context"`
}
