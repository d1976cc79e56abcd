package cloudsign

import (
	"context"
	"strings"
)

// Credentials identify this integration against the CloudSign API. They are
// loaded once at client construction and replaced only through a deliberate
// UpdateCredentials call.
type Credentials struct {
	ClientID string
	BaseURL  string
}

func (c Credentials) validate() error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.BaseURL) == "" {
		return ErrNotConfigured
	}
	return nil
}

func (c Credentials) normalized() Credentials {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.ClientID = strings.TrimSpace(c.ClientID)
	return c
}

// CredentialSource supplies CloudSign credentials from wherever the surrounding
// application keeps them. Implementations return ErrNotConfigured (possibly
// wrapped) when no configuration exists.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}
