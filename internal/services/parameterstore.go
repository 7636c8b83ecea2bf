package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/savaki/credential-rotators/internal/npm"
)

const (
	defaultPasswordLength    = 32
	defaultExcludeCharacters = `"'\/@:`
)

// Config holds all application configuration values from Parameter Store
type Config struct {
	RegistryURL       string
	PasswordLength    int64
	ExcludeCharacters string
	HistoryTableName  string
}

// PasswordOptions returns the password generation settings of the config
func (c *Config) PasswordOptions() PasswordOptions {
	return PasswordOptions{
		Length:            c.PasswordLength,
		ExcludeCharacters: c.ExcludeCharacters,
	}
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads all application configuration from Parameter Store
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMAPI is the subset of the SSM client used by SSMParameterStore
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client SSMAPI
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client SSMAPI, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads all application configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := fmt.Sprintf("/%s/credential-rotators", s.env)

	params := make(map[string]string)
	input := &ssm.GetParametersByPathInput{
		Path:           &path,
		Recursive:      boolPtr(true),
		WithDecryption: boolPtr(true),
	}
	for {
		result, err := s.client.GetParametersByPath(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}

		for _, param := range result.Parameters {
			if param.Name != nil && param.Value != nil {
				params[*param.Name] = *param.Value
			}
		}

		if result.NextToken == nil || *result.NextToken == "" {
			break
		}
		input.NextToken = result.NextToken
	}

	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	key := func(name string) string {
		return params[fmt.Sprintf("%s/%s", path, name)]
	}

	return newConfig(
		key("registry-url"),
		key("password-length"),
		key("exclude-characters"),
		key("history-table-name"),
	)
}

// EnvParameterStore implements ParameterStore using environment variables
// This is a NoOp implementation for local development without AWS connection
type EnvParameterStore struct {
	env string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env: env,
	}
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// GetConfig loads all application configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	return newConfig(
		os.Getenv("NPM_REGISTRY_URL"),
		os.Getenv("PASSWORD_LENGTH"),
		os.Getenv("EXCLUDE_CHARACTERS"),
		os.Getenv("HISTORY_TABLE_NAME"),
	)
}

func newConfig(registryURL, passwordLength, excludeCharacters, historyTableName string) (*Config, error) {
	config := &Config{
		RegistryURL:       registryURL,
		PasswordLength:    defaultPasswordLength,
		ExcludeCharacters: excludeCharacters,
		HistoryTableName:  historyTableName,
	}

	// Set defaults
	if config.RegistryURL == "" {
		config.RegistryURL = npm.DefaultRegistryURL
	}
	if config.ExcludeCharacters == "" {
		config.ExcludeCharacters = defaultExcludeCharacters
	}
	if passwordLength != "" {
		n, err := strconv.ParseInt(passwordLength, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid password length %q", passwordLength)
		}
		config.PasswordLength = n
	}

	return config, nil
}

func boolPtr(b bool) *bool {
	return &b
}
