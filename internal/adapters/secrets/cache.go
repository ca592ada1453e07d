package secrets

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
)

// secretCache is a small TTL cache shared by the remote backends
type secretCache struct {
	entries map[string]*cacheEntry
	now     func() time.Time
	ttl     time.Duration
	enabled bool
	mu      sync.Mutex
}

type cacheEntry struct {
	secret    *ports.Secret
	expiresAt time.Time
}

func newSecretCache(enabled bool, ttl time.Duration) *secretCache {
	return &secretCache{
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
		ttl:     ttl,
		enabled: enabled,
	}
}

func (c *secretCache) get(key string) *ports.Secret {
	if !c.enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return entry.secret
}

func (c *secretCache) set(key string, secret *ports.Secret) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{
		secret:    secret,
		expiresAt: c.now().Add(c.ttl),
	}
}

// splitPath separates "name#field" into its parts. field is empty when absent.
func splitPath(path string) (name, field string) {
	if i := strings.LastIndexByte(path, '#'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

// selectField picks one key out of a JSON object secret.
// With no field the raw value is returned unchanged.
func selectField(raw, field string) (string, error) {
	if field == "" {
		return raw, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "", fmt.Errorf("secret is not a JSON object, cannot select %q", field)
	}
	return fieldValue(obj, field)
}

func fieldValue(obj map[string]interface{}, field string) (string, error) {
	v, ok := obj[field]
	if !ok {
		return "", fmt.Errorf("secret field %q not found", field)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("secret field %q is empty or not a string", field)
	}
	return s, nil
}
