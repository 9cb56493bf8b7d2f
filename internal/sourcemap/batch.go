package sourcemap

import (
	"fmt"

	"go.uber.org/zap"
)

// DefaultBatchRadius is the context radius used by ResolveBatch.
const DefaultBatchRadius uint32 = 5

// Capabilities are the caller-supplied hooks of ResolveBatch. Any field may be nil.
type Capabilities struct {
	// Formatter rewrites a frame's source file into the path handed to Resolver.
	Formatter func(path string) (string, error)
	// Resolver returns the mapping document text for a path.
	Resolver func(path string) (string, error)
	// OnError is notified once per recorded failure.
	OnError func(raw, message string)
}

// BatchOption configures ResolveBatch.
type BatchOption func(*batchConfig)

type batchConfig struct {
	radius  uint32
	decoder Decoder
	parser  *Parser
	strict  bool
	logger  *zap.Logger
}

// WithBatchRadius sets the context radius of every token.
func WithBatchRadius(radius uint32) BatchOption {
	return func(c *batchConfig) {
		c.radius = radius
	}
}

// WithDecoder replaces the mapping document decoder.
func WithDecoder(d Decoder) BatchOption {
	return func(c *batchConfig) {
		if d != nil {
			c.decoder = d
		}
	}
}

// WithBatchParser replaces the default stack line parser.
func WithBatchParser(p *Parser) BatchOption {
	return func(c *batchConfig) {
		if p != nil {
			c.parser = p
		}
	}
}

// WithStrictAccounting records frames whose document fails to decode or whose
// position does not map as failures instead of dropping them.
func WithStrictAccounting() BatchOption {
	return func(c *batchConfig) {
		c.strict = true
	}
}

// WithBatchLogger sets the logger for dropped frames.
func WithBatchLogger(logger *zap.Logger) BatchOption {
	return func(c *batchConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type task struct {
	frame  int
	raw    string
	doc    string
	line   uint32
	column uint32
}

type batch struct {
	cfg    batchConfig
	caps   Capabilities
	result BatchResult
}

// ResolveBatch splits raw into frames and resolves each one against the
// mapping document its Resolver returns. Frames are classified first; the
// queued documents are decoded and looked up afterwards. Failures never
// abort the batch.
func ResolveBatch(raw string, caps Capabilities, opts ...BatchOption) BatchResult {
	cfg := batchConfig{
		radius:  DefaultBatchRadius,
		decoder: SourceMapDecoder{},
		parser:  defaultParser(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	stack := cfg.parser.SplitErrorStack(raw)
	b := &batch{
		cfg:  cfg,
		caps: caps,
		result: BatchResult{
			Frames:    stack.Frames,
			Successes: make([]FrameToken, 0),
			Failures:  make([]ResolutionFailure, 0),
		},
	}

	tasks := make([]task, 0, len(stack.Frames))
	for i, frame := range stack.Frames {
		if t, ok := b.classify(i, frame); ok {
			tasks = append(tasks, t)
		}
	}

	for _, t := range tasks {
		b.generate(t)
	}
	return b.result
}

func (b *batch) classify(i int, frame ParsedFrame) (task, bool) {
	path := frame.SourceFile
	if b.caps.Formatter != nil {
		formatted, err := callFormatter(b.caps.Formatter, path)
		if err != nil {
			b.fail(i, frame.Raw, err.Error(), KindFormatterFailure)
			return task{}, false
		}
		path = formatted
	}

	if b.caps.Resolver == nil {
		b.fail(i, frame.Raw, msgNoResolver, KindMissingResolver)
		return task{}, false
	}

	doc, err := callResolver(b.caps.Resolver, path)
	if err != nil {
		b.fail(i, frame.Raw, err.Error(), KindResolverFailure)
		return task{}, false
	}
	if doc == "" {
		b.fail(i, frame.Raw, msgNotString, KindResolverFailure)
		return task{}, false
	}

	return task{
		frame:  i,
		raw:    frame.Raw,
		doc:    doc,
		line:   frame.Line,
		column: frame.Column,
	}, true
}

func (b *batch) generate(t task) {
	if t.line == 0 {
		b.drop(t, msgUnresolvable, KindLookupMiss)
		return
	}

	mapping, err := b.cfg.decoder.Decode([]byte(t.doc))
	if err != nil {
		b.drop(t, err.Error(), KindMappingDocumentInvalid)
		return
	}

	pos, ok := mapping.Lookup(t.line-1, t.column)
	if !ok || pos.SourceText == nil {
		b.drop(t, msgLookupMiss, KindLookupMiss)
		return
	}

	token := ResolvedToken{
		Line:    pos.Line,
		Column:  pos.Column,
		Context: ExtractContext(*pos.SourceText, pos.Line, b.cfg.radius),
	}
	if pos.Source != nil {
		token.Source = *pos.Source
	}
	b.result.Successes = append(b.result.Successes, FrameToken{Frame: t.frame, ResolvedToken: token})
}

// drop handles a queued frame that produced no token. Without strict
// accounting it is only logged.
func (b *batch) drop(t task, reason string, kind ErrorKind) {
	if !b.cfg.strict {
		b.cfg.logger.Debug("dropped frame",
			zap.Int("frame", t.frame),
			zap.String("raw", t.raw),
			zap.String("reason", reason))
		return
	}
	b.fail(t.frame, t.raw, reason, kind)
}

func (b *batch) fail(i int, raw, reason string, kind ErrorKind) {
	b.result.Failures = append(b.result.Failures, ResolutionFailure{
		Frame:  i,
		Raw:    raw,
		Reason: reason,
		Kind:   kind,
	})
	if b.caps.OnError != nil {
		notify(b.caps.OnError, raw, reason)
	}
}

func callFormatter(fn func(string) (string, error), path string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%s: %v", msgFormatterPanic, r)
		}
	}()
	return fn(path)
}

func callResolver(fn func(string) (string, error), path string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%s: %v", msgResolverPanic, r)
		}
	}()
	return fn(path)
}

func notify(fn func(raw, message string), raw, message string) {
	defer func() {
		_ = recover()
	}()
	fn(raw, message)
}
