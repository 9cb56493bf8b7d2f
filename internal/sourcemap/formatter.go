package sourcemap

import (
	"fmt"
	"strings"
)

// Formatter renders resolved results back into readable stack trace text
type Formatter struct {
	// Indent prefixes every frame line. Defaults to four spaces.
	Indent string
	// Metadata appends the mapping status to every batch frame line.
	Metadata bool
}

// NewFormatter creates a formatter with the default indentation
func NewFormatter() *Formatter {
	return &Formatter{Indent: "    "}
}

// FormatPosition formats a single original position as a frame line.
// Line and column are shown 1-based.
func (f *Formatter) FormatPosition(name string, pos OriginalPosition) string {
	if name == "" {
		name = pos.Name
	}
	src := "<unknown>"
	if pos.Source != nil {
		src = *pos.Source
	}
	return f.frame(name, src, pos.Line, pos.Column)
}

// FormatErrorStack formats a mapped error stack, message first
func (f *Formatter) FormatErrorStack(stack MappedErrorStack) string {
	lines := make([]string, 0, 1+len(stack.Basic)+len(stack.WithContext))
	lines = append(lines, stack.Message)
	for _, pos := range stack.Basic {
		lines = append(lines, f.FormatPosition("", pos))
	}
	for _, token := range stack.WithContext {
		lines = append(lines, f.frame("", token.Source, token.Line, token.Column))
		if listing := f.FormatToken(token); listing != "" {
			lines = append(lines, listing)
		}
	}
	return strings.Join(lines, "\n")
}

// FormatBatch formats a batch result in original frame order. Resolved
// frames are rewritten, failed frames keep their raw line followed by the
// failure reason, and frames that were dropped keep their raw line.
func (f *Formatter) FormatBatch(result BatchResult) string {
	tokens := make(map[int]ResolvedToken, len(result.Successes))
	for _, s := range result.Successes {
		tokens[s.Frame] = s.ResolvedToken
	}
	failures := make(map[int]ResolutionFailure, len(result.Failures))
	for _, fl := range result.Failures {
		if _, seen := failures[fl.Frame]; !seen {
			failures[fl.Frame] = fl
		}
	}

	lines := make([]string, 0, len(result.Frames))
	for i, frame := range result.Frames {
		if token, ok := tokens[i]; ok {
			line := f.frame(frame.Name, token.Source, token.Line, token.Column)
			if f.Metadata {
				line += " ✓ mapped"
			}
			lines = append(lines, line)
			continue
		}

		line := f.Indent + frame.Raw
		if fl, ok := failures[i]; ok {
			line += fmt.Sprintf(" (%s)", fl.Reason)
		}
		if f.Metadata {
			line += " ✗ unmapped"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// FormatToken renders the context window of a token, marking the target
// line with '>'. Line numbers are 1-based and right aligned.
func (f *Formatter) FormatToken(token ResolvedToken) string {
	if len(token.Context) == 0 {
		return ""
	}
	last := uint64(token.Context[len(token.Context)-1].Line) + 1
	width := len(fmt.Sprint(last))

	var sb strings.Builder
	for i, cl := range token.Context {
		if i > 0 {
			sb.WriteByte('\n')
		}
		marker := ' '
		if cl.IsTarget {
			marker = '>'
		}
		fmt.Fprintf(&sb, "%s%c %*d | %s", f.Indent, marker, width, uint64(cl.Line)+1, cl.Code)
	}
	return sb.String()
}

func (f *Formatter) frame(name, src string, line, column uint32) string {
	if name == "" {
		return fmt.Sprintf("%sat %s:%d:%d", f.Indent, src, uint64(line)+1, uint64(column)+1)
	}
	return fmt.Sprintf("%sat %s (%s:%d:%d)", f.Indent, name, src, uint64(line)+1, uint64(column)+1)
}
