package sourcemap

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies resolution failures
type ErrorKind int

const (
	KindParseFailure ErrorKind = iota
	KindMappingDocumentInvalid
	KindResolverFailure
	KindMissingResolver
	KindFormatterFailure
	KindLookupMiss
)

func (k ErrorKind) String() string {
	switch k {
	case KindParseFailure:
		return "parse_failure"
	case KindMappingDocumentInvalid:
		return "mapping_document_invalid"
	case KindResolverFailure:
		return "resolver_failure"
	case KindMissingResolver:
		return "missing_resolver"
	case KindFormatterFailure:
		return "formatter_failure"
	case KindLookupMiss:
		return "lookup_miss"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// MarshalJSON encodes the kind by name.
func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

const (
	msgNoResolver     = "no resolver provided"
	msgNotString      = "resolver did not return string"
	msgUnresolvable   = "generated line 0 is unresolvable"
	msgLookupMiss     = "no mapping for generated position"
	msgResolverPanic  = "resolver panicked"
	msgFormatterPanic = "formatter panicked"
)

// ErrInvalidMapping matches every *DecodeError via errors.Is.
var ErrInvalidMapping = errors.New("invalid sourcemap")

// DecodeError is returned when a mapping document cannot be decoded
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid sourcemap: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports ErrInvalidMapping as a match.
func (e *DecodeError) Is(target error) bool {
	return target == ErrInvalidMapping
}

// Kind is always KindMappingDocumentInvalid.
func (e *DecodeError) Kind() ErrorKind {
	return KindMappingDocumentInvalid
}
