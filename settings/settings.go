package settings

import (
	"errors"
	"time"
)

// ErrNotFound signals that no CloudSign configuration row exists yet.
var ErrNotFound = errors.New("settings: cloudsign is not configured")

// CloudSignConfig is the connection configuration for the CloudSign API. At
// most one row exists; it is managed by administrators, not end users.
type CloudSignConfig struct {
	ClientID  string
	BaseURL   string
	UpdatedAt time.Time
}
