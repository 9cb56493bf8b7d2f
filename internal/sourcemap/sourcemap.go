package sourcemap

import (
	"go.uber.org/zap"
)

// Mapper binds one decoded mapping to stack trace lookups for a single
// compiled artifact. It holds no mutable state and is safe for concurrent use.
type Mapper struct {
	mapping Mapping
	parser  *Parser
	policy  ContextPolicy
	logger  *zap.Logger
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithContextPolicy sets how context windows are clipped (default ClipLow).
func WithContextPolicy(policy ContextPolicy) MapperOption {
	return func(m *Mapper) {
		m.policy = policy
	}
}

// WithMapperLogger sets the logger used to report frames that could not be mapped.
func WithMapperLogger(logger *zap.Logger) MapperOption {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithParser replaces the default stack line parser.
func WithParser(parser *Parser) MapperOption {
	return func(m *Mapper) {
		if parser != nil {
			m.parser = parser
		}
	}
}

// NewMapper decodes a Source Map v3 document and binds it.
func NewMapper(data []byte, opts ...MapperOption) (*Mapper, error) {
	mapping, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return NewMapperFor(mapping, opts...), nil
}

// NewMapperFor binds an already decoded mapping.
func NewMapperFor(mapping Mapping, opts ...MapperOption) *Mapper {
	m := &Mapper{
		mapping: mapping,
		parser:  defaultParser(),
		policy:  ClipLow,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LookupPosition maps a generated position (1-based line) to its original position.
// Line 0 never resolves.
func (m *Mapper) LookupPosition(line, column uint32) (OriginalPosition, bool) {
	return lookupPosition(m.mapping, line, column)
}

// LookupPositionWithContext maps a generated position and attaches radius
// lines of original source on each side. It misses when the mapping
// carries no source content for the position.
func (m *Mapper) LookupPositionWithContext(line, column, radius uint32) (ResolvedToken, bool) {
	return lookupToken(m.mapping, m.policy, line, column, radius)
}

// LookupContextSnippet is LookupPositionWithContext for callers that have a
// position rather than a stack frame.
func (m *Mapper) LookupContextSnippet(line, column, radius uint32) (ResolvedToken, bool) {
	return lookupToken(m.mapping, m.policy, line, column, radius)
}

// ResolveFrameLine parses one stack line and maps it.
func (m *Mapper) ResolveFrameLine(raw string) (OriginalPosition, bool) {
	frame, ok := m.parser.Parse(raw)
	if !ok {
		return OriginalPosition{}, false
	}
	return m.LookupPosition(frame.Line, frame.Column)
}

// ResolveFrameLineWithContext parses one stack line and maps it with context.
func (m *Mapper) ResolveFrameLineWithContext(raw string, radius uint32) (ResolvedToken, bool) {
	frame, ok := m.parser.Parse(raw)
	if !ok {
		return ResolvedToken{}, false
	}
	return m.LookupPositionWithContext(frame.Line, frame.Column, radius)
}

// ResolveFrameTrace maps every frame line of trace. The trace must not
// contain the error message line. Unparsable and unmappable lines are dropped.
func (m *Mapper) ResolveFrameTrace(trace string) []OriginalPosition {
	positions := make([]OriginalPosition, 0)
	for _, frame := range m.parser.ParseTrace(trace) {
		pos, ok := m.LookupPosition(frame.Line, frame.Column)
		if !ok {
			m.logUnmapped(frame)
			continue
		}
		positions = append(positions, pos)
	}
	return positions
}

// ResolveErrorStack maps a raw error block (message line first). With a nil
// radius the frames are mapped without context into Basic; otherwise with
// context into WithContext. Frames that do not map are dropped.
func (m *Mapper) ResolveErrorStack(raw string, radius *uint32) MappedErrorStack {
	stack := m.parser.SplitErrorStack(raw)
	result := MappedErrorStack{
		Message:     stack.Message,
		Basic:       make([]OriginalPosition, 0),
		WithContext: make([]ResolvedToken, 0),
	}

	for _, frame := range stack.Frames {
		if radius != nil {
			token, ok := m.LookupPositionWithContext(frame.Line, frame.Column, *radius)
			if !ok {
				m.logUnmapped(frame)
				continue
			}
			result.WithContext = append(result.WithContext, token)
			continue
		}

		pos, ok := m.LookupPosition(frame.Line, frame.Column)
		if !ok {
			m.logUnmapped(frame)
			continue
		}
		result.Basic = append(result.Basic, pos)
	}
	return result
}

// Sources returns every source path with its full text.
func (m *Mapper) Sources() map[string]string {
	return m.mapping.Sources()
}

func (m *Mapper) logUnmapped(frame ParsedFrame) {
	m.logger.Debug("failed to map position",
		zap.String("file", frame.SourceFile),
		zap.Uint32("line", frame.Line),
		zap.Uint32("column", frame.Column))
}

func lookupPosition(mapping Mapping, line, column uint32) (OriginalPosition, bool) {
	if line == 0 {
		return OriginalPosition{}, false
	}
	return mapping.Lookup(line-1, column)
}

func lookupToken(mapping Mapping, policy ContextPolicy, line, column, radius uint32) (ResolvedToken, bool) {
	pos, ok := lookupPosition(mapping, line, column)
	if !ok || pos.SourceText == nil {
		return ResolvedToken{}, false
	}

	token := ResolvedToken{
		Line:    pos.Line,
		Column:  pos.Column,
		Context: ExtractContextWith(policy, *pos.SourceText, pos.Line, radius),
	}
	if pos.Source != nil {
		token.Source = *pos.Source
	}
	return token, true
}

// ResolveDocument decodes doc and maps one generated position. With a nil
// radius only the target line is returned as context. A mapping without
// source content still yields the position, with an empty context. A
// position that does not map is reported as ok == false with a nil error.
func ResolveDocument(doc []byte, line, column uint32, radius *uint32) (ResolvedToken, bool, error) {
	mapping, err := Decode(doc)
	if err != nil {
		return ResolvedToken{}, false, err
	}
	pos, ok := lookupPosition(mapping, line, column)
	if !ok {
		return ResolvedToken{}, false, nil
	}

	token := ResolvedToken{
		Line:    pos.Line,
		Column:  pos.Column,
		Context: make([]ContextLine, 0),
	}
	if pos.Source != nil {
		token.Source = *pos.Source
	}
	if pos.SourceText != nil {
		r := uint32(0)
		if radius != nil {
			r = *radius
		}
		token.Context = ExtractContext(*pos.SourceText, pos.Line, r)
	}
	return token, true, nil
}
