package di

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/savaki/credential-rotators/internal/npm"
	"github.com/savaki/credential-rotators/internal/rotation"
	"github.com/savaki/credential-rotators/internal/rotation/loginpassword"
	"github.com/savaki/credential-rotators/internal/services"
)

func ProvideNPMClient(config *services.Config) *npm.Client {
	return npm.New(config.RegistryURL)
}

func ProvideLoginPasswordFactory(secrets *services.SecretsManagerService, registry *npm.Client, config *services.Config) rotation.Factory {
	return loginpassword.NewFactory(secrets, registry, config.PasswordOptions())
}

// ProvideRotationHandler records rotation history only when a history table is configured
func ProvideRotationHandler(ctx context.Context, factory rotation.Factory, config *services.Config, history *services.HistoryService) *rotation.Handler {
	logger := zerolog.Ctx(ctx)

	if config.HistoryTableName == "" {
		logger.Info().Msg("Rotation history disabled")
		return rotation.NewHandler(factory)
	}

	logger.Info().
		Str("table_name", config.HistoryTableName).
		Msg("Rotation history enabled")
	return rotation.NewHandler(factory, rotation.WithRecorder(history))
}
