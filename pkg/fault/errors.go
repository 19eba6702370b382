// Package fault defines the classified error taxonomy shared by the
// configuration resolver: directive parsing, import merging, and instance
// graph construction all report failures through the same Error type so that
// callers can branch on the failure kind and users see the offending section
// and reference chain.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a resolver failure for recovery and reporting logic.
type Kind string

const (
	// KindMalformedDirective indicates unparsable directive syntax. It is
	// the only kind recovered locally: the parser falls back to treating
	// the value as a literal string.
	KindMalformedDirective Kind = "malformed_directive"

	// KindMissingSection indicates a directive referenced a section absent
	// from the merged store. Fatal.
	KindMissingSection Kind = "missing_section"

	// KindCyclicDependency indicates a section transitively referenced
	// itself while still resolving. Fatal.
	KindCyclicDependency Kind = "cyclic_dependency"

	// KindInstantiation indicates target construction failed. Fatal; wraps
	// the original cause plus section name and provenance.
	KindInstantiation Kind = "instantiation"

	// KindImportResolution indicates a non-optional import source could
	// not be loaded. Fatal unless the entry is marked optional, in which
	// case the entry is skipped and a diagnostic recorded instead.
	KindImportResolution Kind = "import_resolution"
)

// Error is a classified resolver error with section context.
type Error struct {
	// Class is the failure classification.
	Class Kind

	// Message is the human-readable error message.
	Message string

	// Section is the configuration section that caused the error, if
	// applicable.
	Section string

	// Source is the provenance of the section (originating file or
	// reader), if known.
	Source string

	// Chain is the resolution path that led to the failure, outermost
	// first. For cyclic dependency errors it holds the full cycle.
	Chain []string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Class, e.Message)
	if e.Section != "" {
		fmt.Fprintf(&sb, " (section=%s", e.Section)
		if e.Source != "" {
			fmt.Fprintf(&sb, ", source=%s", e.Source)
		}
		sb.WriteString(")")
	}
	if len(e.Chain) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(e.Chain, " -> "))
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %s", e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two faults match when their
// classes match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithSection adds section context to the error.
func (e *Error) WithSection(section string) *Error {
	e.Section = section
	return e
}

// WithSource adds provenance context to the error.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// WithChain records the resolution path that led to the failure.
func (e *Error) WithChain(chain []string) *Error {
	e.Chain = append([]string(nil), chain...)
	return e
}

// New creates an error of the given kind.
func New(class Kind, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

// Malformed creates a malformed-directive error.
func Malformed(message string, err error) *Error {
	return New(KindMalformedDirective, message, err)
}

// MissingSection creates a missing-section error.
func MissingSection(section string) *Error {
	return New(KindMissingSection, fmt.Sprintf("no such section: %q", section), nil).
		WithSection(section)
}

// Cycle creates a cyclic-dependency error carrying the full cycle path.
func Cycle(section string, chain []string) *Error {
	return New(KindCyclicDependency,
		fmt.Sprintf("section %q references itself while resolving", section), nil).
		WithSection(section).WithChain(chain)
}

// Instantiation wraps a construction-time failure.
func Instantiation(section string, err error) *Error {
	return New(KindInstantiation,
		fmt.Sprintf("can not create instance for section %q", section), err).
		WithSection(section)
}

// Import creates an import-resolution error.
func Import(message string, err error) *Error {
	return New(KindImportResolution, message, err)
}

// KindOf returns the classification of err, or the empty kind when err is not
// a fault.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsFatal reports whether err must propagate to the top-level caller. All
// fault kinds are fatal except malformed directives, which the parser
// recovers by falling back to the literal string.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k != "" && k != KindMalformedDirective
}

// IsMalformed reports whether err is a recoverable directive syntax error.
func IsMalformed(err error) bool {
	return KindOf(err) == KindMalformedDirective
}
