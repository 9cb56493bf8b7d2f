package sourcemap

import (
	"fmt"
	"net/url"
	"path"

	gosourcemap "github.com/go-sourcemap/sourcemap"
	"github.com/tidwall/gjson"
)

// Mapping is a decoded mapping document.
type Mapping interface {
	// Lookup maps a generated position (0-based line) to its original position.
	Lookup(line, column uint32) (OriginalPosition, bool)
	// Sources returns the full text of every source the mapping carries content for.
	Sources() map[string]string
}

// Decoder turns mapping document bytes into a Mapping.
type Decoder interface {
	Decode(data []byte) (Mapping, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(data []byte) (Mapping, error)

func (f DecoderFunc) Decode(data []byte) (Mapping, error) {
	return f(data)
}

// SourceMapDecoder decodes Source Map v3 documents, including index maps with sections.
type SourceMapDecoder struct{}

// Decode parses data. Errors are always *DecodeError.
func (SourceMapDecoder) Decode(data []byte) (m Mapping, err error) {
	// A section without a "map" object makes the decoder dereference nil.
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, &DecodeError{Err: fmt.Errorf("malformed document: %v", r)}
		}
	}()

	consumer, err := gosourcemap.Parse("", data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &consumerMapping{
		consumer: consumer,
		sources:  collectSources(data),
	}, nil
}

// Decode decodes data with SourceMapDecoder.
func Decode(data []byte) (Mapping, error) {
	return SourceMapDecoder{}.Decode(data)
}

type consumerMapping struct {
	consumer *gosourcemap.Consumer
	sources  map[string]string
}

func (m *consumerMapping) Lookup(line, column uint32) (pos OriginalPosition, ok bool) {
	// The decoder indexes sources without bounds checks; a segment pointing
	// past the sources list of a malformed document panics.
	defer func() {
		if recover() != nil {
			pos, ok = OriginalPosition{}, false
		}
	}()

	// go-sourcemap uses 1-based lines on both sides
	source, name, srcLine, srcCol, found := m.consumer.Source(int(line)+1, int(column))
	if !found || srcLine < 1 || srcCol < 0 {
		return OriginalPosition{}, false
	}

	pos = OriginalPosition{
		Line:   uint32(srcLine - 1),
		Column: uint32(srcCol),
		Name:   name,
	}
	if source != "" {
		pos.Source = &source
		if text, exists := m.sources[source]; exists {
			pos.SourceText = &text
		}
	}
	return pos, true
}

func (m *consumerMapping) Sources() map[string]string {
	out := make(map[string]string, len(m.sources))
	for k, v := range m.sources {
		out[k] = v
	}
	return out
}

// collectSources reads sources/sourcesContent from the raw document, once
// per section for index maps. Names are qualified against sourceRoot the
// same way the decoder qualifies lookup results, so both agree on keys.
func collectSources(data []byte) map[string]string {
	out := make(map[string]string)
	doc := gjson.ParseBytes(data)

	sections := doc.Get("sections")
	if sections.IsArray() && len(sections.Array()) > 0 {
		for _, section := range sections.Array() {
			addSources(out, section.Get("map"))
		}
		return out
	}
	addSources(out, doc)
	return out
}

func addSources(out map[string]string, m gjson.Result) {
	root := m.Get("sourceRoot").String()
	contents := m.Get("sourcesContent").Array()
	for i, src := range m.Get("sources").Array() {
		if i >= len(contents) || contents[i].Type != gjson.String {
			continue
		}
		out[qualifySource(root, src.String())] = contents[i].String()
	}
}

func qualifySource(root, source string) string {
	if path.IsAbs(source) {
		return source
	}
	if u, err := url.Parse(source); err == nil && u.IsAbs() {
		return source
	}
	if root == "" {
		return source
	}
	if u, err := url.Parse(root); err == nil && u.IsAbs() {
		joined := *u
		joined.Path = path.Join(joined.Path, source)
		return joined.String()
	}
	return path.Join(root, source)
}
