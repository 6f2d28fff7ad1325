// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package devicesim

// Kind names the semantic category of an error produced by the core,
// independent of the wrapped message text. Callers that need to branch
// on "what sort of failure was this" (alerting, metrics, retries)
// should use Kind instead of string-matching Error().
type Kind int

const (
	// KindUnknown is the zero Kind; used only for errors that did not
	// originate from this module's tagged error values.
	KindUnknown Kind = iota
	KindInvalidArgument
	KindNotFound
	KindOutOfRange
	KindMisalignment
	KindDuplicate
	KindCapacity
	KindNoTarget
	KindRecursionCap
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid-argument"
	case KindNotFound:
		return "not-found"
	case KindOutOfRange:
		return "out-of-range"
	case KindMisalignment:
		return "misalignment"
	case KindDuplicate:
		return "duplicate"
	case KindCapacity:
		return "capacity"
	case KindNoTarget:
		return "no-target"
	case KindRecursionCap:
		return "recursion-cap"
	default:
		return "unknown"
	}
}

// Error pairs a semantic Kind with an underlying error, so a caller can
// log/alert on the kind without parsing the message and still get
// errors.Is/errors.Unwrap compatibility with the wrapped sentinel.
type Error struct {
	kind Kind
	err  error
}

// NewError tags err with kind. err must not be nil.
func NewError(kind Kind, err error) *Error {
	return &Error{kind: kind, err: err}
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

// Kind returns the semantic error kind of e.
func (e *Error) Kind() Kind { return e.kind }

// Classifier reports the Kind a package's own sentinel errors map to,
// so TagErr can tag an error built elsewhere (device, rule, ...)
// without this package importing theirs.
type Classifier func(err error) (Kind, bool)

// TagErr wraps err in an *Error carrying the Kind the first matching
// classifier reports, or returns err unchanged if none match (or err
// is nil). device.Manager calls this at its public API boundary so
// errors.Is against a sentinel keeps working (Error
// unwraps to err) while also exposing a Kind for callers that want to
// branch on error category instead of string-matching.
func TagErr(err error, classifiers ...Classifier) error {
	if err == nil {
		return nil
	}
	for _, classify := range classifiers {
		if kind, ok := classify(err); ok {
			return NewError(kind, err)
		}
	}
	return err
}
