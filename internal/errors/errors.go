package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is works against the sentinels below for
// instances created with New or Wrap.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigInvalid = &AppError{Code: "CONFIG_001", Message: "invalid configuration"}

	ErrValidation = &AppError{Code: "VAL_001", Message: "validation failed"}

	ErrMedicationNotFound = &AppError{Code: "MED_001", Message: "medication not found"}

	ErrProviderUnavailable = &AppError{Code: "AI_001", Message: "insight provider unavailable"}
	ErrRateLimited         = &AppError{Code: "AI_002", Message: "rate limit exceeded"}

	ErrStorage = &AppError{Code: "STORE_001", Message: "storage failure"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
