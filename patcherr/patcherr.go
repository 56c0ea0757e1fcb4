// Package patcherr defines the error taxonomy shared by every layer of
// patchkit: locators, the TOML editor, the validator, and the applicator
// all report failures as a *patcherr.Error so callers can branch on Kind
// while fmt/errors users still see a normal wrapped error chain.
package patcherr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation in the patch pipeline failed.
type Kind int

const (
	// Unknown is the zero value; it should never appear in a returned error.
	Unknown Kind = iota
	OutsideWorkspace
	BeforeTextMismatch
	InvalidByteRange
	NoMatch
	AmbiguousMatch
	ParseErrorIntroduced
	InvalidSnippet
	InvalidTomlSyntax
	SectionNotFound
	KeyNotFound
	OverlappingEdits
	InvalidPositioning
	VersionRequirement
	VersionParse
	Unsupported
	InvalidConfig
	IO
)

func (k Kind) String() string {
	switch k {
	case OutsideWorkspace:
		return "OutsideWorkspace"
	case BeforeTextMismatch:
		return "BeforeTextMismatch"
	case InvalidByteRange:
		return "InvalidByteRange"
	case NoMatch:
		return "NoMatch"
	case AmbiguousMatch:
		return "AmbiguousMatch"
	case ParseErrorIntroduced:
		return "ParseErrorIntroduced"
	case InvalidSnippet:
		return "InvalidSnippet"
	case InvalidTomlSyntax:
		return "InvalidTomlSyntax"
	case SectionNotFound:
		return "SectionNotFound"
	case KeyNotFound:
		return "KeyNotFound"
	case OverlappingEdits:
		return "OverlappingEdits"
	case InvalidPositioning:
		return "InvalidPositioning"
	case VersionRequirement:
		return "VersionRequirement"
	case VersionParse:
		return "VersionParse"
	case Unsupported:
		return "Unsupported"
	case InvalidConfig:
		return "InvalidConfig"
	case IO:
		return "IO"
	default:
		return "Unknown"
	}
}

// Error is the error value returned by every patchkit component.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Msg == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error wrapping cause, annotated with msg.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
