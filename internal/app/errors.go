package app

import "fmt"

// Application-level errors. Callers branch on them with errors.Is.
var (
	ErrValidation         = fmt.Errorf("validation failed")
	ErrLockedPeriod       = fmt.Errorf("month is closed for payroll")
	ErrNotFound           = fmt.Errorf("not found")
	ErrNetwork            = fmt.Errorf("remote call failed")
	ErrTimeout            = fmt.Errorf("remote call timed out")
	ErrConflict           = fmt.Errorf("account already exists with a different credential")
	ErrCredentialMismatch = fmt.Errorf("credential does not match the stored account")
	ErrNotSignedIn        = fmt.Errorf("no account signed in")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
