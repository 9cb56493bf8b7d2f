package sourcemap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// framePattern is one entry of the parser's ordered pattern table. Named
// groups: name (optional), url, line, column.
type framePattern struct {
	name string
	re   *regexp.Regexp
}

// Parser parses JavaScript stack lines into ParsedFrame values.
// A Parser is immutable after construction and safe for concurrent use.
type Parser struct {
	custom   []framePattern
	gate     []*regexp.Regexp
	patterns []framePattern
	fallback *regexp.Regexp
}

// Pattern is a caller-supplied frame expression. Expr must define the named
// groups url, line and column; a name group is optional.
type Pattern struct {
	Name string
	Expr string
}

// NewParser builds a parser with the V8 and Firefox/Safari stack line shapes:
//
//	at functionName (file:line:column)
//	at file:line:column
//	[async ]functionName@file:line:column
//	@file:line:column
func NewParser() *Parser {
	return &Parser{
		gate: []*regexp.Regexp{
			regexp.MustCompile(`^at `),
			regexp.MustCompile(`@.+:\d+:\d+$`),
		},
		patterns: []framePattern{
			{"v8-named", regexp.MustCompile(`^at\s+(?P<name>.+?)\s*\((?P<url>.+?):(?P<line>\d+):(?P<column>\d+)\)$`)},
			{"v8-anonymous", regexp.MustCompile(`^at\s+(?P<url>.+?):(?P<line>\d+):(?P<column>\d+)$`)},
			{"gecko-named", regexp.MustCompile(`^(?:async\s+)?(?P<name>[^@]+?)@(?P<url>.+?):(?P<line>\d+):(?P<column>\d+)$`)},
			{"gecko-anonymous", regexp.MustCompile(`^@(?P<url>.+?):(?P<line>\d+):(?P<column>\d+)$`)},
		},
		// Unanchored; recovers lines with leading or trailing noise.
		fallback: regexp.MustCompile(`at\s+(?P<name>.+?)?\s*\((?P<url>.+?):(?P<line>\d+):(?P<column>\d+)\)|at\s+(?P<url2>.+?):(?P<line2>\d+):(?P<column2>\d+)`),
	}
}

// NewParserWith builds a parser that tries extra before the built-in table.
// Extra patterns are not subject to the built-in gate.
func NewParserWith(extra ...Pattern) (*Parser, error) {
	p := NewParser()
	for _, pat := range extra {
		re, err := regexp.Compile(pat.Expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pat.Name, err)
		}
		for _, g := range []string{"url", "line", "column"} {
			if re.SubexpIndex(g) < 0 {
				return nil, fmt.Errorf("pattern %q: missing named group %q", pat.Name, g)
			}
		}
		p.custom = append(p.custom, framePattern{name: pat.Name, re: re})
	}
	return p, nil
}

var defaultParser = sync.OnceValue(NewParser)

// ParseStackLine parses one line with the default parser.
func ParseStackLine(line string) (ParsedFrame, bool) {
	return defaultParser().Parse(line)
}

// ParseStackTrace parses every line of a trace with the default parser.
// Lines that do not look like frames are skipped.
func ParseStackTrace(trace string) []ParsedFrame {
	return defaultParser().ParseTrace(trace)
}

// ParseTrace parses a full stack trace (multiple lines) into frames
func (p *Parser) ParseTrace(trace string) []ParsedFrame {
	frames := make([]ParsedFrame, 0)
	for _, line := range splitLines(trace) {
		if frame, ok := p.Parse(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Parse parses a single line from a stack trace
func (p *Parser) Parse(line string) (ParsedFrame, bool) {
	trimmed := strings.TrimSpace(line)

	// Anything with fewer than two colons cannot carry url:line:column
	if strings.Count(trimmed, ":") < 2 {
		return ParsedFrame{}, false
	}

	for _, pattern := range p.custom {
		if m := pattern.re.FindStringSubmatch(trimmed); m != nil {
			return frameFromMatch(pattern.re, m, trimmed, "url", "line", "column"), true
		}
	}

	if p.passesGate(trimmed) {
		for _, pattern := range p.patterns {
			if m := pattern.re.FindStringSubmatch(trimmed); m != nil {
				return frameFromMatch(pattern.re, m, trimmed, "url", "line", "column"), true
			}
		}
	}

	m := p.fallback.FindStringSubmatch(trimmed)
	if m == nil {
		return ParsedFrame{}, false
	}
	if group(p.fallback, m, "url") != "" {
		return frameFromMatch(p.fallback, m, trimmed, "url", "line", "column"), true
	}
	return frameFromMatch(p.fallback, m, trimmed, "url2", "line2", "column2"), true
}

func (p *Parser) passesGate(line string) bool {
	for _, re := range p.gate {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func frameFromMatch(re *regexp.Regexp, m []string, raw, urlGroup, lineGroup, columnGroup string) ParsedFrame {
	return ParsedFrame{
		Name:       group(re, m, "name"),
		SourceFile: group(re, m, urlGroup),
		Line:       parseUint32(group(re, m, lineGroup)),
		Column:     parseUint32(group(re, m, columnGroup)),
		Raw:        raw,
	}
}

func group(re *regexp.Regexp, m []string, name string) string {
	idx := re.SubexpIndex(name)
	if idx < 0 || idx >= len(m) {
		return ""
	}
	return m[idx]
}

// parseUint32 returns 0 for anything that is not a valid uint32, including overflow.
func parseUint32(s string) uint32 {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// SplitErrorStack splits a raw error block into its first line, taken
// verbatim as the message, and the frames parsed from the remaining lines.
// Lines that fail to parse are dropped.
func SplitErrorStack(raw string) ErrorStack {
	return defaultParser().SplitErrorStack(raw)
}

// SplitErrorStack is SplitErrorStack using p for the frame lines.
func (p *Parser) SplitErrorStack(raw string) ErrorStack {
	stack := ErrorStack{Frames: make([]ParsedFrame, 0)}
	for i, line := range splitLines(raw) {
		if i == 0 {
			stack.Message = line
			continue
		}
		if frame, ok := p.Parse(line); ok {
			stack.Frames = append(stack.Frames, frame)
		}
	}
	return stack
}

// splitLines splits on '\n' and drops one trailing '\r' per line. A final
// empty line after a trailing newline is not returned. Minified bundles put
// whole programs on one line, so there is deliberately no length limit here.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
