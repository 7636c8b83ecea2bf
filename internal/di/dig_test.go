package di

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/savaki/credential-rotators/internal/dao/rotationdao"
	"github.com/savaki/credential-rotators/internal/npm"
	"github.com/savaki/credential-rotators/internal/rotation"
	"github.com/savaki/credential-rotators/internal/services"
	"github.com/savaki/credential-rotators/internal/stack"
	"github.com/stretchr/testify/assert"
)

// localEnv points the container at environment variable configuration
func localEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISABLE_SSM", "true")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("NPM_REGISTRY_URL", "")
	t.Setenv("PASSWORD_LENGTH", "")
	t.Setenv("EXCLUDE_CHARACTERS", "")
	t.Setenv("HISTORY_TABLE_NAME", "")
}

type stubRotator struct {
	err error
}

func (s stubRotator) Rotate(ctx context.Context) error {
	return s.err
}

type fakeHistoryStore struct {
	created []rotationdao.CreateInput
	updated []rotationdao.UpdateInput
}

func (f *fakeHistoryStore) Create(ctx context.Context, input rotationdao.CreateInput) (rotationdao.Record, error) {
	f.created = append(f.created, input)
	return rotationdao.Record{PK: rotationdao.PK(input.SecretID), SK: input.SK}, nil
}

func (f *fakeHistoryStore) Find(ctx context.Context, id rotationdao.ID) (rotationdao.Record, error) {
	return rotationdao.Record{}, nil
}

func (f *fakeHistoryStore) UpdateStatus(ctx context.Context, input rotationdao.UpdateInput) error {
	f.updated = append(f.updated, input)
	return nil
}

func (f *fakeHistoryStore) Query(ctx context.Context, secretID string) ([]rotationdao.Record, error) {
	return nil, nil
}

var record = map[string]any{
	rotation.KeySecretID:           "npm/login",
	rotation.KeyClientRequestToken: "2HbR5Xq",
	rotation.KeyStep:               "createSecret",
}

func TestAppConfigDefaults(t *testing.T) {
	localEnv(t)

	container, err := New("dev")
	assert.NoError(t, err)

	config := MustGet[*services.Config](container)
	assert.Equal(t, npm.DefaultRegistryURL, config.RegistryURL)
	assert.Equal(t, int64(32), config.PasswordLength)
	assert.NotEmpty(t, config.ExcludeCharacters)
	assert.Empty(t, config.HistoryTableName)

	assert.IsType(t, &services.EnvParameterStore{}, MustGet[services.ParameterStore](container))
	assert.Equal(t, "dev", MustGet[string](container))
}

func TestAppConfigFromEnvironment(t *testing.T) {
	localEnv(t)
	t.Setenv("NPM_REGISTRY_URL", "http://localhost:4873")
	t.Setenv("PASSWORD_LENGTH", "48")

	container, err := New("dev")
	assert.NoError(t, err)

	config := MustGet[*services.Config](container)
	assert.Equal(t, "http://localhost:4873", config.RegistryURL)
	assert.Equal(t, int64(48), config.PasswordLength)
}

func TestAppConfigInvalidPasswordLength(t *testing.T) {
	localEnv(t)
	t.Setenv("PASSWORD_LENGTH", "many")

	container, err := New("dev")
	assert.NoError(t, err)

	err = container.Invoke(func(*services.Config) {})
	assert.Error(t, err)
}

func TestProvideRotationHandler(t *testing.T) {
	ctx := context.Background()
	factory := func(secretID, clientRequestToken string, step rotation.Step) rotation.Rotator {
		return stubRotator{}
	}

	t.Run("without history table", func(t *testing.T) {
		store := &fakeHistoryStore{}
		handler := ProvideRotationHandler(ctx, factory, &services.Config{}, services.NewHistoryService(store))

		assert.NoError(t, handler.RotateLoginPassword(ctx, record))
		assert.Len(t, store.created, 0)
		assert.Len(t, store.updated, 0)
	})

	t.Run("with history table", func(t *testing.T) {
		store := &fakeHistoryStore{}
		config := &services.Config{HistoryTableName: "dev-credential-rotators--history"}
		handler := ProvideRotationHandler(ctx, factory, config, services.NewHistoryService(store))

		assert.NoError(t, handler.RotateLoginPassword(ctx, record))
		assert.Len(t, store.created, 1)
		assert.Equal(t, "npm/login", store.created[0].SecretID)
		assert.Equal(t, "createSecret", store.created[0].Step)
		assert.Len(t, store.updated, 1)
		assert.Equal(t, rotationdao.StatusSucceeded, store.updated[0].Status)
	})
}

func TestProvideParameterStore(t *testing.T) {
	ctx := context.Background()

	assert.IsType(t, &services.EnvParameterStore{}, ProvideParameterStore(ctx, nil, "dev"))

	client := ssm.NewFromConfig(aws.Config{Region: "us-east-1"})
	assert.IsType(t, &services.SSMParameterStore{}, ProvideParameterStore(ctx, client, "dev"))
}

func TestProvideStackParameterReader(t *testing.T) {
	localEnv(t)

	container, err := New("dev")
	assert.NoError(t, err)

	// published role ARNs are read from SSM even when configuration is not
	assert.IsType(t, &services.SSMParameterStore{}, MustGet[stack.ParameterReader](container))
}

func TestStackOptions(t *testing.T) {
	localEnv(t)

	tags := map[string]string{"Team": "mobile"}
	container, err := New("dev",
		WithStackWaitTimeout(5*time.Minute),
		WithStackTags(tags),
	)
	assert.NoError(t, err)

	assert.Equal(t, StackWaitTimeout(5*time.Minute), MustGet[StackWaitTimeout](container))
	assert.Equal(t, StackTags(tags), MustGet[StackTags](container))
	assert.NotNil(t, MustGet[*stack.Deployer](container))
}

func TestStackOptionsDefaults(t *testing.T) {
	localEnv(t)

	container, err := New("dev")
	assert.NoError(t, err)

	assert.Equal(t, StackWaitTimeout(0), MustGet[StackWaitTimeout](container))
	assert.Len(t, MustGet[StackTags](container), 0)
}

func TestCoreProviders(t *testing.T) {
	localEnv(t)

	container, err := New("dev")
	assert.NoError(t, err)

	assert.NotNil(t, MustGet[*rotation.Handler](container))
	assert.NotNil(t, MustGet[rotation.Factory](container))
	assert.NotNil(t, MustGet[*services.HistoryService](container))
	assert.NotNil(t, MustGet[*services.SecretsManagerService](container))
	assert.NotNil(t, MustGet[*services.IAMService](container))
}

func TestProvideRotationDAO(t *testing.T) {
	localEnv(t)

	container, err := New("stg")
	assert.NoError(t, err)
	assert.NotNil(t, MustGet[*rotationdao.DAO](container))
}

func TestWithProviders(t *testing.T) {
	localEnv(t)

	store := &fakeHistoryStore{}
	container, err := New("dev", WithProviders(func() *fakeHistoryStore { return store }))
	assert.NoError(t, err)
	assert.Same(t, store, MustGet[*fakeHistoryStore](container))
}

func TestMustGet_PanicsWhenMissing(t *testing.T) {
	container, err := New("dev")
	assert.NoError(t, err)

	assert.Panics(t, func() {
		_ = MustGet[*stubRotator](container)
	})
}

func TestNew_DuplicateProvider(t *testing.T) {
	_, err := New("dev", WithProviders(func() *services.Config { return &services.Config{} }))
	assert.Error(t, err)
}
