// Package syncerr classifies the failures the reconciler has to tell apart:
// a remote hiccup worth retrying next cycle, a vanished entity, a parent the
// other side rejected, corrupt cross references, and an unreachable store.
package syncerr

import (
	"errors"
	"fmt"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

// Kind is the category of a sync failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindNotFound
	KindInvalidParent
	KindDataIntegrity
	KindStoreUnavailable
	KindMissingField
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindInvalidParent:
		return "invalid_parent"
	case KindDataIntegrity:
		return "data_integrity"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindMissingField:
		return "missing_field"
	default:
		return "unknown"
	}
}

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrTransient        = errors.New("transient remote error")
	ErrNotFound         = errors.New("not found")
	ErrInvalidParent    = errors.New("invalid parent")
	ErrDataIntegrity    = errors.New("data integrity violation")
	ErrStoreUnavailable = errors.New("mapping store unavailable")
	ErrMissingField     = errors.New("missing required field")
)

var sentinels = map[Kind]error{
	KindTransient:        ErrTransient,
	KindNotFound:         ErrNotFound,
	KindInvalidParent:    ErrInvalidParent,
	KindDataIntegrity:    ErrDataIntegrity,
	KindStoreUnavailable: ErrStoreUnavailable,
	KindMissingField:     ErrMissingField,
}

// Error carries enough context to diagnose a failure without replaying the pass.
type Error struct {
	Kind Kind
	Side model.Side
	Op   string
	ID   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Side != "" {
		msg = fmt.Sprintf("%s %s", e.Side, msg)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s during %s", msg, e.Op)
	}
	if e.ID != "" {
		msg = fmt.Sprintf("%s of %s", msg, e.ID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New builds an *Error of the given kind.
func New(kind Kind, side model.Side, op, id string, err error) *Error {
	return &Error{Kind: kind, Side: side, Op: op, ID: id, Err: err}
}

func Transient(side model.Side, op, id string, err error) error {
	return New(KindTransient, side, op, id, err)
}

func NotFound(side model.Side, op, id string, err error) error {
	return New(KindNotFound, side, op, id, err)
}

func InvalidParent(side model.Side, op, id string, err error) error {
	return New(KindInvalidParent, side, op, id, err)
}

func DataIntegrity(side model.Side, op, id string, err error) error {
	return New(KindDataIntegrity, side, op, id, err)
}

// StoreUnavailable wraps a mapping store failure. It is fatal to the current pass.
func StoreUnavailable(op string, err error) error {
	return New(KindStoreUnavailable, "", op, "", err)
}

func MissingField(side model.Side, id, field string) error {
	return New(KindMissingField, side, "convert", id, fmt.Errorf("%s is not set", field))
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
