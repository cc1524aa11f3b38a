package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("feature not found")
	ErrForbidden = errors.New("write access required")
	ErrRejected  = errors.New("rejected by store")
)

// SyncErrorKind separates store refusals from transport failures.
type SyncErrorKind int

const (
	// SyncRejected means the store refused the write (invalid geometry,
	// constraint violation, unknown id). Retrying the same payload will not help.
	SyncRejected SyncErrorKind = iota + 1
	// SyncTransport means the write may not have reached the store
	// (timeout, cancellation, connection loss).
	SyncTransport
)

func (k SyncErrorKind) String() string {
	switch k {
	case SyncRejected:
		return "rejected"
	case SyncTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// SyncError is returned by every failed remote write or read.
type SyncError struct {
	Kind SyncErrorKind
	Op   string
	ID   string
	Err  error
}

func (e *SyncError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsRejected reports whether err is a SyncError of kind SyncRejected.
func IsRejected(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Kind == SyncRejected
}

// IsTransport reports whether err is a SyncError of kind SyncTransport.
func IsTransport(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Kind == SyncTransport
}
