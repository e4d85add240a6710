package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Pipeline errors
	ErrStrategyGeneration = fmt.Errorf("strategy generation failed")
	ErrCatalogAuth        = fmt.Errorf("catalog authentication failed")
	ErrCatalogRequest     = fmt.Errorf("catalog request failed")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrRunNotFound        = fmt.Errorf("run not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrNoResult           = fmt.Errorf("no recommendation yet")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// StrategyGenerationError reports that no generation attempt produced a valid strategy.
//
// Err holds the error from the last attempt.
type StrategyGenerationError struct {
	Attempts int
	Err      error
}

func (e *StrategyGenerationError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", ErrStrategyGeneration, e.Attempts, e.Err)
}

func (e *StrategyGenerationError) Unwrap() error { return e.Err }

func (e *StrategyGenerationError) Is(target error) bool { return target == ErrStrategyGeneration }

// CatalogAuthError reports that the catalog rejected the client credentials.
type CatalogAuthError struct {
	Status int
	Err    error
}

func (e *CatalogAuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v (status %d): %v", ErrCatalogAuth, e.Status, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrCatalogAuth, e.Err)
}

func (e *CatalogAuthError) Unwrap() error { return e.Err }

func (e *CatalogAuthError) Is(target error) bool { return target == ErrCatalogAuth }

// CatalogRequestError reports a transport or HTTP failure for a single catalog query.
type CatalogRequestError struct {
	Query  string
	Status int
	Err    error
}

func (e *CatalogRequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v for %q (status %d): %v", ErrCatalogRequest, e.Query, e.Status, e.Err)
	}
	return fmt.Sprintf("%v for %q: %v", ErrCatalogRequest, e.Query, e.Err)
}

func (e *CatalogRequestError) Unwrap() error { return e.Err }

func (e *CatalogRequestError) Is(target error) bool { return target == ErrCatalogRequest }

// UserMessage maps an error to the text shown to people using the CLI, TUI or HTTP API.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStrategyGeneration):
		return "Could not build a search strategy from that description. Try rephrasing your mood or activity."
	case errors.Is(err, ErrCatalogAuth):
		return "The music catalog rejected the configured client credentials. Check the spotify section of your configuration."
	case errors.Is(err, ErrCatalogRequest):
		return "The music catalog could not be reached. Try again in a moment."
	case errors.Is(err, ErrMissingCredentials):
		return "Credentials are missing. Set them in config.toml, .env or the environment."
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidFlag), errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrMissingArgument):
		return err.Error()
	case errors.Is(err, ErrRunNotFound):
		return "No saved run matches that reference."
	case errors.Is(err, ErrNoResult):
		return "No recommendation has been made yet."
	case errors.Is(err, ErrServiceUnavailable):
		return "This feature is not available with the current configuration."
	case errors.Is(err, ErrTimeout):
		return "The request timed out. Try again in a moment."
	default:
		return "Something went wrong while building the playlist."
	}
}
