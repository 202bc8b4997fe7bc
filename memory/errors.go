package memory

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput     Kind = "INVALID_INPUT"
	KindEmbeddingFailure Kind = "EMBEDDING_FAILURE"
	KindStoreFailure     Kind = "STORE_FAILURE"
	KindRetrievalFailure Kind = "RETRIEVAL_FAILURE"
)

var (
	ErrInvalidTurn  = errors.New("invalid turn")
	ErrInvalidQuery = errors.New("invalid query")
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("memory %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("memory %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether any error in err's chain is a memory error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
