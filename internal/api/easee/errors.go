package easee

import "errors"

// Error kinds returned by the Easee API client. Callers classify with
// errors.Is; wrapped messages carry the detail.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrLoginFailed     = errors.New("login failed")
	ErrNetworkFailure  = errors.New("network failure")
	ErrInvalidResponse = errors.New("invalid response")
	ErrRateLimited     = errors.New("rate limited")
)
