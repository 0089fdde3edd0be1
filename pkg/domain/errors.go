package domain

import "errors"

// Common domain errors
var (
	ErrPackageNotFound    = errors.New("package not found")
	ErrConfigNotFound     = errors.New("config file does not exist")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrSRIDMismatch       = errors.New("extent geometry SRID does not match the configured SRID")
	ErrPostGISUnavailable = errors.New("postgis is not available in the database")
	ErrWrongAPIResponse   = errors.New("wrong API response")
	ErrInvalidMetadata    = errors.New("invalid metadata document")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// PackageNotFound reports a package reference that matched neither an id nor a name.
func PackageNotFound(ref string) error {
	return &DomainError{
		Err:     ErrPackageNotFound,
		Code:    "PACKAGE_NOT_FOUND",
		Message: `package ref "` + ref + `" not recognised`,
		Details: map[string]any{"ref": ref},
	}
}
