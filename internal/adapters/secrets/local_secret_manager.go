package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
)

// localSecretManager reads secrets from files under basePath.
// For development only; use AWS Secrets Manager or Vault in production.
type localSecretManager struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalSecretManager creates a filesystem secret manager
func NewLocalSecretManager(basePath string, logger *zap.Logger) ports.SecretManager {
	return &localSecretManager{
		basePath: basePath,
		logger:   logger,
	}
}

// GetSecret reads basePath/<path>. A "#field" suffix selects one key of a JSON file;
// plain files are returned with surrounding whitespace trimmed.
func (m *localSecretManager) GetSecret(_ context.Context, secretPath string) (*ports.Secret, error) {
	name, field := splitPath(secretPath)

	clean := filepath.Clean("/" + name)
	filePath := filepath.Join(m.basePath, clean)

	m.logger.Debug("Reading secret from filesystem", zap.String("path", name))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("secret not found: %s", name)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	value, err := selectField(strings.TrimSpace(string(data)), field)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", name, err)
	}

	return &ports.Secret{
		Value:   value,
		Version: "v1",
	}, nil
}
