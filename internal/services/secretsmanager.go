package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/savaki/credential-rotators/internal/errors"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used for rotation
type SecretsManagerAPI interface {
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
	GetRandomPassword(ctx context.Context, params *secretsmanager.GetRandomPasswordInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetRandomPasswordOutput, error)
	RotateSecret(ctx context.Context, params *secretsmanager.RotateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RotateSecretOutput, error)
}

type SecretsManagerService struct {
	client SecretsManagerAPI
}

// LoginCredentials is the JSON document stored in an npm login secret.
// Fields other than username and password are carried across versions untouched.
type LoginCredentials struct {
	Username string         `json:"username"`
	Password string         `json:"password"`
	Extra    map[string]any `json:"-"`
}

func (c LoginCredentials) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(c.Extra)+2)
	for k, v := range c.Extra {
		doc[k] = v
	}
	doc["username"] = c.Username
	doc["password"] = c.Password
	return json.Marshal(doc)
}

func (c *LoginCredentials) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	username, _ := doc["username"].(string)
	password, _ := doc["password"].(string)
	delete(doc, "username")
	delete(doc, "password")

	c.Username = username
	c.Password = password
	c.Extra = nil
	if len(doc) > 0 {
		c.Extra = doc
	}
	return nil
}

// PasswordOptions controls password generation
type PasswordOptions struct {
	Length            int64
	ExcludeCharacters string
}

func NewSecretsManagerService(client SecretsManagerAPI) *SecretsManagerService {
	return &SecretsManagerService{
		client: client,
	}
}

// DescribeSecret returns the rotation settings and version stages of a secret
func (s *SecretsManagerService) DescribeSecret(ctx context.Context, secretID string) (*secretsmanager.DescribeSecretOutput, error) {
	return s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(secretID),
	})
}

// GetCredentials retrieves and parses a login secret by stage and, optionally, version id.
// Errors from Secrets Manager are returned unwrapped so callers can match on the SDK types.
func (s *SecretsManagerService) GetCredentials(ctx context.Context, secretID, stage, versionID string) (*LoginCredentials, error) {
	input := &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(stage),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	result, err := s.client.GetSecretValue(ctx, input)
	if err != nil {
		return nil, err
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("%w: secret %s has no string value", errors.ErrMalformedSecret, secretID)
	}

	var creds LoginCredentials
	if err := json.Unmarshal([]byte(*result.SecretString), &creds); err != nil {
		return nil, fmt.Errorf("%w: secret %s is not valid JSON: %v", errors.ErrMalformedSecret, secretID, err)
	}

	if creds.Username == "" {
		return nil, fmt.Errorf("%w: secret %s has no username", errors.ErrMalformedSecret, secretID)
	}

	return &creds, nil
}

// PutPendingCredentials stores credentials as the AWSPENDING version identified by token
func (s *SecretsManagerService) PutPendingCredentials(ctx context.Context, secretID, token string, creds *LoginCredentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	_, err = s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(secretID),
		SecretString:       aws.String(string(data)),
		ClientRequestToken: aws.String(token),
		VersionStages:      []string{"AWSPENDING"},
	})
	if err != nil {
		return fmt.Errorf("failed to put secret value: %w", err)
	}

	return nil
}

// GeneratePassword asks Secrets Manager for a random password
func (s *SecretsManagerService) GeneratePassword(ctx context.Context, opts PasswordOptions) (string, error) {
	input := &secretsmanager.GetRandomPasswordInput{
		RequireEachIncludedType: aws.Bool(true),
	}
	if opts.Length > 0 {
		input.PasswordLength = aws.Int64(opts.Length)
	}
	if opts.ExcludeCharacters != "" {
		input.ExcludeCharacters = aws.String(opts.ExcludeCharacters)
	}

	result, err := s.client.GetRandomPassword(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}

	if result.RandomPassword == nil || *result.RandomPassword == "" {
		return "", fmt.Errorf("failed to generate password: empty result")
	}

	return *result.RandomPassword, nil
}

// PromoteVersion moves AWSCURRENT to the version identified by token.
// Returns false when the version was already current.
func (s *SecretsManagerService) PromoteVersion(ctx context.Context, secretID, token string) (bool, error) {
	metadata, err := s.DescribeSecret(ctx, secretID)
	if err != nil {
		return false, err
	}

	currentVersion := ""
	for version, stages := range metadata.VersionIdsToStages {
		if slices.Contains(stages, "AWSCURRENT") {
			currentVersion = version
			break
		}
	}

	if currentVersion == token {
		return false, nil
	}

	input := &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:        aws.String(secretID),
		VersionStage:    aws.String("AWSCURRENT"),
		MoveToVersionId: aws.String(token),
	}
	if currentVersion != "" {
		input.RemoveFromVersionId = aws.String(currentVersion)
	}

	if _, err := s.client.UpdateSecretVersionStage(ctx, input); err != nil {
		return false, fmt.Errorf("failed to update version stage: %w", err)
	}

	return true, nil
}

// StartRotation asks Secrets Manager to rotate the secret now using token as the new version id.
// The configured rotation function performs the steps.
func (s *SecretsManagerService) StartRotation(ctx context.Context, secretID, token string) (string, error) {
	result, err := s.client.RotateSecret(ctx, &secretsmanager.RotateSecretInput{
		SecretId:           aws.String(secretID),
		ClientRequestToken: aws.String(token),
		RotateImmediately:  aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start rotation: %w", err)
	}
	return aws.ToString(result.VersionId), nil
}

// CancelPending removes the AWSPENDING label from a version
func (s *SecretsManagerService) CancelPending(ctx context.Context, secretID, versionID string) error {
	_, err := s.client.UpdateSecretVersionStage(ctx, &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:            aws.String(secretID),
		VersionStage:        aws.String("AWSPENDING"),
		RemoveFromVersionId: aws.String(versionID),
	})
	if err != nil {
		return fmt.Errorf("failed to remove AWSPENDING stage: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a Secrets Manager ResourceNotFoundException
func IsNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return stderrors.As(err, &notFound)
}
