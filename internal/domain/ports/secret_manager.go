package ports

import "context"

// Secret represents a retrieved secret with metadata
type Secret struct {
	Metadata map[string]string
	Value    string
	Version  string
}

// SecretManager retrieves gateway credentials from a secret store.
// Path format depends on the backend:
//   - AWS:   "mpesa-checkout/daraja/passkey"
//   - Vault: "mpesa-checkout/daraja" with the field after a '#', e.g. "mpesa-checkout/daraja#passkey"
//   - Local: a file path relative to the configured base directory
type SecretManager interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
