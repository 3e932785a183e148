package contract

import (
	"errors"
	"fmt"
	"strings"
)

// Stable error codes for compile failures. Codes are part of the API
// surface: they appear in logs, stored records and HTTP problem bodies.
const (
	// CodeInclusionConflict: merged inclusion verdicts resolved to a failure.
	CodeInclusionConflict = "SAPIO/COMPILE/INCLUSION_CONFLICT"
	// CodeArgCoercion: continuation arguments could not be converted to the
	// branch's concrete argument type.
	CodeArgCoercion = "SAPIO/COMPILE/ARG_COERCION"
	// CodeProduction: a branch failed while producing templates.
	CodeProduction = "SAPIO/COMPILE/PRODUCTION"
	// CodeEmptyRequired: a required branch produced no templates.
	CodeEmptyRequired = "SAPIO/COMPILE/EMPTY_REQUIRED"
	// CodeSchema: instance or argument JSON rejected by its schema.
	CodeSchema = "SAPIO/COMPILE/SCHEMA"
	// CodeUnknownBranch: arguments supplied for a branch the kind does not declare.
	CodeUnknownBranch = "SAPIO/COMPILE/UNKNOWN_BRANCH"
	// CodeFunds: a context funds operation over-allocated its budget.
	CodeFunds = "SAPIO/COMPILE/FUNDS"
	// CodeInternal: a malformed declaration or engine bug.
	CodeInternal = "SAPIO/COMPILE/INTERNAL"
)

// Error is a compile failure with a stable code, the branch it arose in
// (when attributable), and optional detail.
type Error struct {
	Code    string
	Branch  string
	Reasons []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Branch != "" {
		fmt.Fprintf(&b, ": branch %q", e.Branch)
	}
	if len(e.Reasons) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Reasons, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// AsError unwraps err to the typed compile error, if any.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// errCode reports the code of err if it is a compile error, else "".
func errCode(err error) string {
	if ce, ok := AsError(err); ok {
		return ce.Code
	}
	return ""
}
