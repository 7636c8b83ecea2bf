package services

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/savaki/credential-rotators/internal/dao/rotationdao"
	"github.com/savaki/credential-rotators/internal/rotation"
	"github.com/stretchr/testify/assert"
)

type fakeHistoryStore struct {
	records map[rotationdao.ID]*rotationdao.Record
}

func (f *fakeHistoryStore) Create(ctx context.Context, input rotationdao.CreateInput) (rotationdao.Record, error) {
	record := rotationdao.Record{
		PK:        rotationdao.PK(input.SecretID),
		SK:        input.SK,
		Token:     input.Token,
		Step:      input.Step,
		Status:    rotationdao.StatusStarted,
		CreatedAt: 1760000000,
	}
	f.records[record.GetID()] = &record
	return record, nil
}

func (f *fakeHistoryStore) Find(ctx context.Context, id rotationdao.ID) (rotationdao.Record, error) {
	record, ok := f.records[id]
	if !ok {
		return rotationdao.Record{}, stderrors.New("history record not found: " + id.String())
	}
	return *record, nil
}

func (f *fakeHistoryStore) UpdateStatus(ctx context.Context, input rotationdao.UpdateInput) error {
	record := f.records[input.ID]
	record.Status = input.Status
	record.ErrorMsg = input.ErrorMsg
	finished := int64(1760000060)
	record.FinishedAt = &finished
	return nil
}

func (f *fakeHistoryStore) Query(ctx context.Context, secretID string) ([]rotationdao.Record, error) {
	var records []rotationdao.Record
	for _, record := range f.records {
		if record.PK.String() == secretID {
			records = append(records, *record)
		}
	}
	return records, nil
}

func TestHistoryService(t *testing.T) {
	ctx := context.Background()
	store := &fakeHistoryStore{records: map[rotationdao.ID]*rotationdao.Record{}}
	svc := NewHistoryService(store)

	var _ rotation.Recorder = svc

	id, err := svc.RecordStart(ctx, rotation.Event{
		SecretID:           "npm/login",
		ClientRequestToken: "token-1",
		Step:               rotation.StepSetSecret,
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, id)

	assert.NoError(t, svc.RecordFinish(ctx, id, stderrors.New("registry rejected the credentials")))

	entries, err := svc.List(ctx, "npm/login")
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, "setSecret", entries[0].Step)
	assert.Equal(t, "FAILED", entries[0].Status)
	assert.Equal(t, "registry rejected the credentials", entries[0].Error)
	assert.NotNil(t, entries[0].FinishedAt)
}

func TestHistoryService_Get(t *testing.T) {
	ctx := context.Background()
	store := &fakeHistoryStore{records: map[rotationdao.ID]*rotationdao.Record{}}
	svc := NewHistoryService(store)

	id, err := svc.RecordStart(ctx, rotation.Event{
		SecretID:           "npm/login",
		ClientRequestToken: "token-2",
		Step:               rotation.StepTestSecret,
	})
	assert.NoError(t, err)
	assert.NoError(t, svc.RecordFinish(ctx, id, nil))

	entry, err := svc.Get(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, "token-2", entry.Token)
	assert.Equal(t, "SUCCEEDED", entry.Status)
	assert.Empty(t, entry.Error)

	_, err = svc.Get(ctx, "npm/login:missing")
	assert.Error(t, err)
}
