package rotation

import (
	"fmt"

	"github.com/savaki/credential-rotators/internal/errors"
)

// Keys of the event record sent by Secrets Manager to a rotation function.
const (
	KeySecretID           = "SecretId"
	KeyClientRequestToken = "ClientRequestToken"
	KeyStep               = "Step"
)

// Event is the rotation request delivered to a rotation function.
type Event struct {
	SecretID           string `json:"SecretId"`
	ClientRequestToken string `json:"ClientRequestToken"`
	Step               Step   `json:"Step"`
}

// ParseEvent extracts the rotation fields from a raw event record.
// The step label is passed through as-is; rotators decide which steps they accept.
func ParseEvent(record map[string]any) (Event, error) {
	secretID, err := requireString(record, KeySecretID)
	if err != nil {
		return Event{}, err
	}

	token, err := requireString(record, KeyClientRequestToken)
	if err != nil {
		return Event{}, err
	}

	step, err := requireString(record, KeyStep)
	if err != nil {
		return Event{}, err
	}

	return Event{
		SecretID:           secretID,
		ClientRequestToken: token,
		Step:               Step(step),
	}, nil
}

func requireString(record map[string]any, key string) (string, error) {
	raw, ok := record[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrMissingEventKey, key)
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", errors.ErrMissingEventKey, key, raw)
	}

	return s, nil
}
