package types

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// TrapError aborts a contract call. Site names the check that failed.
type TrapError struct {
	Site  string
	cause error
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("trap at %s: %s", e.Site, e.cause)
}

func (e *TrapError) Unwrap() error { return e.cause }

func (e *TrapError) Cause() error { return e.cause }

// StackTrace returns the stack captured when the trap fired.
func (e *TrapError) StackTrace() pkgerrors.StackTrace {
	if st, ok := e.cause.(interface{ StackTrace() pkgerrors.StackTrace }); ok {
		return st.StackTrace()
	}
	return nil
}

// AssertOrTrap returns nil when cond holds and a *TrapError tagged with site otherwise.
func AssertOrTrap(cond bool, site string) error {
	if cond {
		return nil
	}
	return &TrapError{
		Site:  site,
		cause: pkgerrors.WithStack(ErrAssertion.Wrap(site)),
	}
}

// TrapSite returns the site of a trap anywhere in err's chain.
func TrapSite(err error) (string, bool) {
	var trap *TrapError
	if pkgerrors.As(err, &trap) {
		return trap.Site, true
	}
	return "", false
}
