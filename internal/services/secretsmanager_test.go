package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/savaki/credential-rotators/internal/errors"
	"github.com/stretchr/testify/assert"
)

type fakeSecretsManager struct {
	value    *string
	stages   map[string][]string
	puts     []*secretsmanager.PutSecretValueInput
	updates  []*secretsmanager.UpdateSecretVersionStageInput
	password *secretsmanager.GetRandomPasswordInput
	rotates  []*secretsmanager.RotateSecretInput
}

func (f *fakeSecretsManager) DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	return &secretsmanager.DescribeSecretOutput{
		RotationEnabled:    aws.Bool(true),
		VersionIdsToStages: f.stages,
	}, nil
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.value == nil {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Secrets Manager can't find the specified secret.")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func (f *fakeSecretsManager) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.puts = append(f.puts, params)
	return &secretsmanager.PutSecretValueOutput{}, nil
}

func (f *fakeSecretsManager) UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error) {
	f.updates = append(f.updates, params)
	return &secretsmanager.UpdateSecretVersionStageOutput{}, nil
}

func (f *fakeSecretsManager) GetRandomPassword(ctx context.Context, params *secretsmanager.GetRandomPasswordInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetRandomPasswordOutput, error) {
	f.password = params
	return &secretsmanager.GetRandomPasswordOutput{RandomPassword: aws.String("Zq7!pR2#")}, nil
}

func (f *fakeSecretsManager) RotateSecret(ctx context.Context, params *secretsmanager.RotateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RotateSecretOutput, error) {
	f.rotates = append(f.rotates, params)
	return &secretsmanager.RotateSecretOutput{VersionId: params.ClientRequestToken}, nil
}

func TestGetCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps extra fields", func(t *testing.T) {
		client := &fakeSecretsManager{value: aws.String(`{"username":"ci-bot","password":"pw","email":"ci@example.com"}`)}
		svc := NewSecretsManagerService(client)

		creds, err := svc.GetCredentials(ctx, "npm/login", "AWSCURRENT", "")
		assert.NoError(t, err)
		assert.Equal(t, "ci-bot", creds.Username)
		assert.Equal(t, "pw", creds.Password)
		assert.Equal(t, "ci@example.com", creds.Extra["email"])

		creds.Password = "next"
		assert.NoError(t, svc.PutPendingCredentials(ctx, "npm/login", "token-1", creds))
		assert.Len(t, client.puts, 1)
		assert.Equal(t, "token-1", *client.puts[0].ClientRequestToken)
		assert.Equal(t, []string{"AWSPENDING"}, client.puts[0].VersionStages)

		var stored map[string]any
		assert.NoError(t, json.Unmarshal([]byte(*client.puts[0].SecretString), &stored))
		assert.Equal(t, map[string]any{"username": "ci-bot", "password": "next", "email": "ci@example.com"}, stored)
	})

	t.Run("not found is passed through", func(t *testing.T) {
		svc := NewSecretsManagerService(&fakeSecretsManager{})

		_, err := svc.GetCredentials(ctx, "npm/login", "AWSPENDING", "token-1")
		assert.True(t, IsNotFound(err))
	})

	for name, value := range map[string]string{
		"invalid json":     `not-json`,
		"missing username": `{"password":"pw"}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewSecretsManagerService(&fakeSecretsManager{value: aws.String(value)})

			_, err := svc.GetCredentials(ctx, "npm/login", "AWSCURRENT", "")
			assert.True(t, stderrors.Is(err, errors.ErrMalformedSecret))
		})
	}
}

func TestGeneratePassword(t *testing.T) {
	client := &fakeSecretsManager{}
	svc := NewSecretsManagerService(client)

	password, err := svc.GeneratePassword(context.Background(), PasswordOptions{Length: 40, ExcludeCharacters: `"'`})
	assert.NoError(t, err)
	assert.Equal(t, "Zq7!pR2#", password)
	assert.Equal(t, int64(40), *client.password.PasswordLength)
	assert.Equal(t, `"'`, *client.password.ExcludeCharacters)
	assert.True(t, *client.password.RequireEachIncludedType)
}

func TestPromoteVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("moves current", func(t *testing.T) {
		client := &fakeSecretsManager{stages: map[string][]string{
			"old": {"AWSCURRENT"},
			"new": {"AWSPENDING"},
		}}
		svc := NewSecretsManagerService(client)

		moved, err := svc.PromoteVersion(ctx, "npm/login", "new")
		assert.NoError(t, err)
		assert.True(t, moved)
		assert.Len(t, client.updates, 1)
		assert.Equal(t, "new", *client.updates[0].MoveToVersionId)
		assert.Equal(t, "old", *client.updates[0].RemoveFromVersionId)
		assert.Equal(t, "AWSCURRENT", *client.updates[0].VersionStage)
	})

	t.Run("already current", func(t *testing.T) {
		client := &fakeSecretsManager{stages: map[string][]string{
			"new": {"AWSCURRENT", "AWSPENDING"},
		}}
		svc := NewSecretsManagerService(client)

		moved, err := svc.PromoteVersion(ctx, "npm/login", "new")
		assert.NoError(t, err)
		assert.False(t, moved)
		assert.Len(t, client.updates, 0)
	})
}

func TestCancelPending(t *testing.T) {
	client := &fakeSecretsManager{}
	svc := NewSecretsManagerService(client)

	assert.NoError(t, svc.CancelPending(context.Background(), "npm/login", "v-2"))
	assert.Len(t, client.updates, 1)
	assert.Equal(t, "AWSPENDING", *client.updates[0].VersionStage)
	assert.Equal(t, "v-2", *client.updates[0].RemoveFromVersionId)
	assert.Nil(t, client.updates[0].MoveToVersionId)
}

func TestStartRotation(t *testing.T) {
	client := &fakeSecretsManager{}
	svc := NewSecretsManagerService(client)

	versionID, err := svc.StartRotation(context.Background(), "npm/login", "2HbR5Xq")
	assert.NoError(t, err)
	assert.Equal(t, "2HbR5Xq", versionID)

	assert.Len(t, client.rotates, 1)
	assert.Equal(t, "npm/login", aws.ToString(client.rotates[0].SecretId))
	assert.Equal(t, "2HbR5Xq", aws.ToString(client.rotates[0].ClientRequestToken))
	assert.True(t, aws.ToBool(client.rotates[0].RotateImmediately))
}
