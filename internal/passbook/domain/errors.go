package domain

import "errors"

var (
	ErrNotConfigured     = errors.New("passbook source not configured")
	ErrSourceUnavailable = errors.New("passbook source unavailable")
	// ErrSessionExpired means credentials/session are invalid; retrying is
	// pointless until the operator reconnects.
	ErrSessionExpired = errors.New("passbook session expired")
)
