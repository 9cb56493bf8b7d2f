package sourcemap

// ContextPolicy controls how a context window is clipped at the ends of a source.
type ContextPolicy int

const (
	// ClipLow clips the window at line 0 but never at the end of the
	// source: slots past the last line are emitted with empty Code.
	ClipLow ContextPolicy = iota
	// ClipBoth clips the window at line 0 and at the last line.
	ClipBoth
)

func (p ContextPolicy) String() string {
	switch p {
	case ClipBoth:
		return "clip_both"
	default:
		return "asymmetric"
	}
}

// ExtractContext returns the lines [target-radius, target+radius] of source
// using the ClipLow policy.
func ExtractContext(source string, target, radius uint32) []ContextLine {
	return ExtractContextWith(ClipLow, source, target, radius)
}

// ExtractContextWith returns the lines [target-radius, target+radius] of
// source clipped according to policy. The target line is always present.
func ExtractContextWith(policy ContextPolicy, source string, target, radius uint32) []ContextLine {
	lines := splitLines(source)

	start := uint64(0)
	if target > radius {
		start = uint64(target - radius)
	}
	end := uint64(target) + uint64(radius)
	if policy == ClipBoth {
		last := uint64(0)
		if len(lines) > 0 {
			last = uint64(len(lines)) - 1
		}
		end = min(end, max(last, uint64(target)))
	}

	window := make([]ContextLine, 0, min(end-start+1, 1024))
	for ln := start; ln <= end; ln++ {
		code := ""
		if ln < uint64(len(lines)) {
			code = lines[ln]
		}
		window = append(window, ContextLine{
			Line:     uint32(ln),
			IsTarget: ln == uint64(target),
			Code:     code,
		})
	}
	return window
}
