package ports

import "net/http"

// HTTPClient is satisfied by *http.Client; adapters depend on it so tests can
// substitute a recording or failing transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
