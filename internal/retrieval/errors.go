package retrieval

import (
	"errors"
	"fmt"
)

// Kind classifies a retrieval failure for callers deciding whether to retry.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

var (
	// ErrInvalidArgument matches any error caused by a malformed query.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable matches any error caused by unreachable, slow or cancelled storage.
	ErrUnavailable = errors.New("storage unavailable")
	ErrInternal    = errors.New("internal error")
)

// Error carries the failure kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidArgument:
		return e.Kind == KindInvalidArgument
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

func InvalidArgument(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Err: fmt.Errorf(format, args...)}
}

func Unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Op: op, Err: err}
}

func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindUnavailable
}
