package services

import (
	"context"
	"time"

	"github.com/savaki/credential-rotators/internal/dao/rotationdao"
	"github.com/savaki/credential-rotators/internal/rotation"
	"github.com/savaki/gox/slicex"
	"github.com/segmentio/ksuid"
)

// HistoryStore is the storage behind HistoryService
type HistoryStore interface {
	Create(ctx context.Context, input rotationdao.CreateInput) (rotationdao.Record, error)
	Find(ctx context.Context, id rotationdao.ID) (rotationdao.Record, error)
	UpdateStatus(ctx context.Context, input rotationdao.UpdateInput) error
	Query(ctx context.Context, secretID string) ([]rotationdao.Record, error)
}

// HistoryEntry is a rotation history record as presented to operators
type HistoryEntry struct {
	ID         string     `json:"id"`
	Token      string     `json:"token"`
	Step       string     `json:"step"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// HistoryService records each rotation step in DynamoDB
type HistoryService struct {
	store HistoryStore
}

func NewHistoryService(store HistoryStore) *HistoryService {
	return &HistoryService{store: store}
}

// RecordStart stores a STARTED record for the event and returns its id
func (h *HistoryService) RecordStart(ctx context.Context, event rotation.Event) (string, error) {
	record, err := h.store.Create(ctx, rotationdao.CreateInput{
		SecretID: event.SecretID,
		SK:       ksuid.New().String(),
		Token:    event.ClientRequestToken,
		Step:     event.Step.String(),
	})
	if err != nil {
		return "", err
	}
	return record.GetID().String(), nil
}

// RecordFinish marks the record as SUCCEEDED, or FAILED with the error message
func (h *HistoryService) RecordFinish(ctx context.Context, id string, rotateErr error) error {
	input := rotationdao.UpdateInput{
		ID:     rotationdao.ID(id),
		Status: rotationdao.StatusSucceeded,
	}
	if rotateErr != nil {
		msg := rotateErr.Error()
		input.Status = rotationdao.StatusFailed
		input.ErrorMsg = &msg
	}
	return h.store.UpdateStatus(ctx, input)
}

// List returns the rotation history of a secret, most recent first
func (h *HistoryService) List(ctx context.Context, secretID string) ([]HistoryEntry, error) {
	records, err := h.store.Query(ctx, secretID)
	if err != nil {
		return nil, err
	}
	return slicex.Map(records, toHistoryEntry), nil
}

// Get returns a single history entry by id
func (h *HistoryService) Get(ctx context.Context, id string) (HistoryEntry, error) {
	record, err := h.store.Find(ctx, rotationdao.ID(id))
	if err != nil {
		return HistoryEntry{}, err
	}
	return toHistoryEntry(record), nil
}

func toHistoryEntry(record rotationdao.Record) HistoryEntry {
	entry := HistoryEntry{
		ID:        record.GetID().String(),
		Token:     record.Token,
		Step:      record.Step,
		Status:    string(record.Status),
		CreatedAt: time.Unix(record.CreatedAt, 0).UTC(),
	}
	if record.ErrorMsg != nil {
		entry.Error = *record.ErrorMsg
	}
	if record.FinishedAt != nil {
		finished := time.Unix(*record.FinishedAt, 0).UTC()
		entry.FinishedAt = &finished
	}
	return entry
}
