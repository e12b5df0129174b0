// Package apperr описывает таксономию ошибок конвейера скачивания.
// Каждая ошибка компонента переводится в *Error до попадания в оркестратор.
package apperr

import (
	"errors"
	"fmt"
)

// Kind вид ошибки
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindExtraction
	KindSizeExceeded
	KindIO
	KindNotFound
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindExtraction:
		return "extraction_failed"
	case KindSizeExceeded:
		return "size_exceeded"
	case KindIO:
		return "io_failure"
	case KindNotFound:
		return "not_found"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error ошибка с видом, операцией и (для SizeExceeded) наблюдаемым и допустимым размером
type Error struct {
	Kind     Kind
	Op       string
	Observed uint64
	Limit    uint64
	Err      error
}

// Сентинелы для errors.Is: сравнение только по Kind
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrExtraction   = &Error{Kind: KindExtraction}
	ErrSizeExceeded = &Error{Kind: KindSizeExceeded}
	ErrIO           = &Error{Kind: KindIO}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrCancelled    = &Error{Kind: KindCancelled}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Kind == KindSizeExceeded && e.Limit > 0 {
		msg = fmt.Sprintf("%s (%d > %d bytes)", msg, e.Observed, e.Limit)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is сопоставляет с сентинелом того же вида
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// New создаёт ошибку вида kind для операции op
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// SizeExceeded ошибка превышения лимита
func SizeExceeded(op string, observed, limit uint64) *Error {
	return &Error{Kind: KindSizeExceeded, Op: op, Observed: observed, Limit: limit}
}

// KindOf возвращает вид ошибки или KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Wrap переводит произвольную ошибку в *Error, не трогая уже классифицированные
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return New(kind, op, err)
}
