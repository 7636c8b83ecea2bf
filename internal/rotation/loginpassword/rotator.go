// Package loginpassword rotates the login password of an npm registry account
// stored as a {"username","password"} JSON secret in Secrets Manager.
package loginpassword

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/savaki/credential-rotators/internal/errors"
	"github.com/savaki/credential-rotators/internal/rotation"
	"github.com/savaki/credential-rotators/internal/services"
)

// SecretStore is the secret storage used by the rotator
type SecretStore interface {
	DescribeSecret(ctx context.Context, secretID string) (*secretsmanager.DescribeSecretOutput, error)
	GetCredentials(ctx context.Context, secretID, stage, versionID string) (*services.LoginCredentials, error)
	PutPendingCredentials(ctx context.Context, secretID, token string, creds *services.LoginCredentials) error
	GeneratePassword(ctx context.Context, opts services.PasswordOptions) (string, error)
	PromoteVersion(ctx context.Context, secretID, token string) (bool, error)
}

// Registry is the account whose password is rotated
type Registry interface {
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	VerifyPassword(ctx context.Context, username, password string) error
}

// UserLoginPasswordRotator performs one rotation step for one secret version
type UserLoginPasswordRotator struct {
	secrets  SecretStore
	registry Registry
	password services.PasswordOptions

	secretID string
	token    string
	step     rotation.Step
}

// NewFactory returns a rotation.Factory that builds UserLoginPasswordRotators
func NewFactory(secrets SecretStore, registry Registry, password services.PasswordOptions) rotation.Factory {
	return func(secretID, clientRequestToken string, step rotation.Step) rotation.Rotator {
		return New(secrets, registry, password, secretID, clientRequestToken, step)
	}
}

func New(secrets SecretStore, registry Registry, password services.PasswordOptions, secretID, token string, step rotation.Step) *UserLoginPasswordRotator {
	return &UserLoginPasswordRotator{
		secrets:  secrets,
		registry: registry,
		password: password,
		secretID: secretID,
		token:    token,
		step:     step,
	}
}

// Rotate runs the configured step after checking that the secret is set up for rotation
// and that the token names its AWSPENDING version.
func (r *UserLoginPasswordRotator) Rotate(ctx context.Context) error {
	logger := zerolog.Ctx(ctx).With().
		Str("secret_id", r.secretID).
		Str("token", r.token).
		Str("step", r.step.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	if !r.step.Valid() {
		return fmt.Errorf("%w: %q", errors.ErrInvalidStep, r.step)
	}

	metadata, err := r.secrets.DescribeSecret(ctx, r.secretID)
	if err != nil {
		return err
	}

	if metadata.RotationEnabled == nil || !*metadata.RotationEnabled {
		return fmt.Errorf("%w: %s", errors.ErrRotationNotEnabled, r.secretID)
	}

	stages, ok := metadata.VersionIdsToStages[r.token]
	if !ok {
		return fmt.Errorf("%w: secret %s, version %s", errors.ErrVersionNotFound, r.secretID, r.token)
	}

	if slices.Contains(stages, rotation.StageCurrent) {
		logger.Info().Msg("Secret version already set as AWSCURRENT")
		return nil
	}

	if !slices.Contains(stages, rotation.StagePending) {
		return fmt.Errorf("%w: secret %s, version %s", errors.ErrVersionNotPending, r.secretID, r.token)
	}

	switch r.step {
	case rotation.StepCreateSecret:
		return r.createSecret(ctx)
	case rotation.StepSetSecret:
		return r.setSecret(ctx)
	case rotation.StepTestSecret:
		return r.testSecret(ctx)
	default:
		return r.finishSecret(ctx)
	}
}

func (r *UserLoginPasswordRotator) createSecret(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	current, err := r.secrets.GetCredentials(ctx, r.secretID, rotation.StageCurrent, "")
	if err != nil {
		return err
	}

	_, err = r.secrets.GetCredentials(ctx, r.secretID, rotation.StagePending, r.token)
	if err == nil {
		logger.Info().Msg("Pending secret already exists")
		return nil
	}
	if !services.IsNotFound(err) && !stderrors.Is(err, errors.ErrMalformedSecret) {
		return err
	}

	password, err := r.secrets.GeneratePassword(ctx, r.password)
	if err != nil {
		return err
	}

	pending := *current
	pending.Password = password
	if err := r.secrets.PutPendingCredentials(ctx, r.secretID, r.token, &pending); err != nil {
		return err
	}

	logger.Info().Msg("Created pending secret")
	return nil
}

func (r *UserLoginPasswordRotator) setSecret(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	pending, err := r.secrets.GetCredentials(ctx, r.secretID, rotation.StagePending, r.token)
	if err != nil {
		return err
	}

	if err := r.registry.VerifyPassword(ctx, pending.Username, pending.Password); err == nil {
		logger.Info().Msg("Pending password already set on registry")
		return nil
	} else if !stderrors.Is(err, errors.ErrUnauthorized) {
		return err
	}

	current, err := r.secrets.GetCredentials(ctx, r.secretID, rotation.StageCurrent, "")
	if err != nil {
		return err
	}

	err = r.registry.ChangePassword(ctx, pending.Username, current.Password, pending.Password)
	if err == nil {
		logger.Info().Msg("Set pending password on registry")
		return nil
	}
	if !stderrors.Is(err, errors.ErrUnauthorized) {
		return err
	}

	// the account may still be on the previous password if an earlier rotation failed mid-way
	previous, prevErr := r.secrets.GetCredentials(ctx, r.secretID, rotation.StagePrevious, "")
	if prevErr != nil {
		logger.Warn().Err(prevErr).Msg("No usable AWSPREVIOUS secret")
		return err
	}

	if err := r.registry.ChangePassword(ctx, pending.Username, previous.Password, pending.Password); err != nil {
		return err
	}

	logger.Info().Msg("Set pending password on registry using AWSPREVIOUS password")
	return nil
}

func (r *UserLoginPasswordRotator) testSecret(ctx context.Context) error {
	pending, err := r.secrets.GetCredentials(ctx, r.secretID, rotation.StagePending, r.token)
	if err != nil {
		return err
	}

	if err := r.registry.VerifyPassword(ctx, pending.Username, pending.Password); err != nil {
		return fmt.Errorf("pending password failed to log in: %w", err)
	}

	zerolog.Ctx(ctx).Info().Msg("Pending password verified against registry")
	return nil
}

func (r *UserLoginPasswordRotator) finishSecret(ctx context.Context) error {
	moved, err := r.secrets.PromoteVersion(ctx, r.secretID, r.token)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Bool("moved", moved).Msg("Finished rotation")
	return nil
}
