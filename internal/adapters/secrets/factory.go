package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/config"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
)

// New builds the secret manager selected by SECRETS_BACKEND.
// The env backend needs no store and returns nil.
func New(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManager, error) {
	switch cfg.Backend {
	case config.SecretsBackendEnv, "":
		return nil, nil
	case config.SecretsBackendAWS:
		awsCfg := DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Endpoint = cfg.AWSEndpoint
		return NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)
	case config.SecretsBackendVault:
		vaultCfg := DefaultVaultConfig(cfg.VaultAddress, cfg.VaultToken)
		if cfg.VaultMount != "" {
			vaultCfg.MountPath = cfg.VaultMount
		}
		return NewVaultAdapter(vaultCfg, logger)
	case config.SecretsBackendLocal:
		return NewLocalSecretManager(cfg.LocalBaseDir, logger), nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend: %s", cfg.Backend)
	}
}
