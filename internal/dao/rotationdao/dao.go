package rotationdao

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
)

const historyTTLDays = 90 // Auto-expire history after 90 days

// TableName returns the rotation history table name for an environment
func TableName(env string) string {
	return fmt.Sprintf("%s-credential-rotators--history", env)
}

// PK represents the partition key: the secret ARN or name
type PK string

// String returns the string representation
func (pk PK) String() string {
	return string(pk)
}

// ID represents a history entry in format {secretId}:{ksuid}
// Secret ARNs contain colons so the KSUID is taken from the last segment
type ID string

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// ParseID parses an ID into partition and sort key
func ParseID(id ID) (pk PK, sk string, err error) {
	s := string(id)
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("invalid history ID format: %s, expected {secretId}:{ksuid}", s)
	}
	return PK(s[:i]), s[i+1:], nil
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// Status represents the outcome of a rotation step
type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Record is a single rotation step invocation
type Record struct {
	PK         PK      `ddb:"hash" dynamodbav:"pk"`         // secret id
	SK         string  `ddb:"range" dynamodbav:"sk"`        // KSUID
	Token      string  `dynamodbav:"token,omitempty"`       // ClientRequestToken of the version
	Step       string  `dynamodbav:"step,omitempty"`        // rotation step
	Status     Status  `dynamodbav:"status,omitempty"`
	ErrorMsg   *string `dynamodbav:"error_msg,omitempty"`
	CreatedAt  int64   `dynamodbav:"created_at,omitempty"`  // Unix epoch timestamp of creation
	FinishedAt *int64  `dynamodbav:"finished_at,omitempty"` // Unix epoch timestamp of completion
	TTL        int64   `dynamodbav:"ttl,omitempty"`         // Unix timestamp for DynamoDB TTL expiry
}

// GetID returns the full history ID
func (r *Record) GetID() ID {
	return NewID(r.PK, r.SK)
}

// CreateInput contains the fields needed to record a rotation step
type CreateInput struct {
	SecretID string // Secret ARN or name
	SK       string // KSUID sort key
	Token    string // ClientRequestToken
	Step     string // Rotation step
}

// UpdateInput contains the fields that can be updated on a history record
type UpdateInput struct {
	ID       ID
	Status   Status
	ErrorMsg *string
}

// DAO provides data access operations for rotation history
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create records a rotation step with status STARTED
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	now := time.Now().Unix()

	record := Record{
		PK:        PK(input.SecretID),
		SK:        input.SK,
		Token:     input.Token,
		Step:      input.Step,
		Status:    StatusStarted,
		CreatedAt: now,
		TTL:       now + historyTTLDays*24*3600,
	}

	if err := d.table.Put(&record).RunWithContext(ctx); err != nil {
		return Record{}, fmt.Errorf("failed to create history record: %w", err)
	}

	return record, nil
}

// Find retrieves a history record by ID
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record
	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("history record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to find history record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("history record not found: %s", id)
	}

	return record, nil
}

// UpdateStatus marks a history record as finished
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	pk, sk, err := ParseID(input.ID)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	update := d.table.Update(pk.String()).
		Range(sk).
		Set("#Status = ?", string(input.Status))

	if input.Status == StatusSucceeded || input.Status == StatusFailed {
		update = update.Set("#FinishedAt = ?", now)
	}

	if input.ErrorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *input.ErrorMsg)
	}

	if err := update.RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to update history record: %w", err)
	}

	return nil
}

// Query returns the history of a secret, most recent first
func (d *DAO) Query(ctx context.Context, secretID string) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", secretID).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	// KSUIDs sort by creation time
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(b.SK, a.SK)
	})

	return records, nil
}
