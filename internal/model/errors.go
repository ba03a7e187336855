package model

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Kind classifies pipeline errors.
type Kind string

const (
	// KindValidation marks bad input; it stops a run before it starts.
	KindValidation Kind = "validation"
	// KindFetch marks a failed web search.
	KindFetch Kind = "fetch"
	// KindRetrieval marks a failed embedding call.
	KindRetrieval Kind = "retrieval"
	// KindInference marks a failed LLM call.
	KindInference Kind = "inference"
	// KindParse marks a response that did not follow the requested layout.
	KindParse Kind = "parse"
)

// Error is a classified error. Only KindValidation is fatal to a run.
type Error struct {
	Kind Kind
	Err  error
}

// NewError wraps cause (which may be nil) with msg and classifies it.
func NewError(kind Kind, cause error, msg string) error {
	var err error
	if cause == nil {
		err = eris.New(msg)
	} else {
		err = eris.Wrap(cause, msg)
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return string(e.Kind) + " error: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
