// Package rotation fronts the Secrets Manager rotation protocol. Handlers unpack
// the event record sent by the service and delegate each step to a Rotator.
package rotation

import (
	"context"

	"github.com/rs/zerolog"
)

// Rotator performs a single rotation step for one secret version.
type Rotator interface {
	Rotate(ctx context.Context) error
}

// Factory constructs a Rotator for the given secret, version token and step.
type Factory func(secretID, clientRequestToken string, step Step) Rotator

// Recorder captures the outcome of each rotation step.
type Recorder interface {
	RecordStart(ctx context.Context, event Event) (string, error)
	RecordFinish(ctx context.Context, id string, rotateErr error) error
}

type HandlerOption func(*Handler)

// WithRecorder stores the outcome of every rotation step handled
func WithRecorder(recorder Recorder) HandlerOption {
	return func(h *Handler) {
		h.recorder = recorder
	}
}

type Handler struct {
	newRotator Factory
	recorder   Recorder
}

func NewHandler(factory Factory, opts ...HandlerOption) *Handler {
	h := &Handler{newRotator: factory}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RotateLoginPassword handles a rotation event for the npm user's login password.
//
// The record must contain SecretId, ClientRequestToken and Step. A record missing any
// of them fails before a rotator is constructed. Errors returned by the rotator are
// passed back to Secrets Manager unchanged.
func (h *Handler) RotateLoginPassword(ctx context.Context, record map[string]any) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().Interface("event", record).Msg("Received login password rotation event")

	event, err := ParseEvent(record)
	if err != nil {
		return err
	}

	rotator := h.newRotator(event.SecretID, event.ClientRequestToken, event.Step)

	id := h.recordStart(ctx, event)
	err = rotator.Rotate(ctx)
	h.recordFinish(ctx, id, err)

	if err != nil {
		logger.Error().
			Err(err).
			Str("secret_id", event.SecretID).
			Str("step", event.Step.String()).
			Msg("Rotation step failed")
		return err
	}

	logger.Info().
		Str("secret_id", event.SecretID).
		Str("step", event.Step.String()).
		Msg("Rotation step completed")
	return nil
}

// RotateAccessKeys handles a rotation event for the npm user's access keys.
// Access key rotation is not implemented; every event is accepted as is.
func (h *Handler) RotateAccessKeys(ctx context.Context, record map[string]any) error {
	return nil
}

func (h *Handler) recordStart(ctx context.Context, event Event) string {
	if h.recorder == nil {
		return ""
	}

	id, err := h.recorder.RecordStart(ctx, event)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to record rotation start")
		return ""
	}
	return id
}

func (h *Handler) recordFinish(ctx context.Context, id string, rotateErr error) {
	if h.recorder == nil || id == "" {
		return
	}

	if err := h.recorder.RecordFinish(ctx, id, rotateErr); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("id", id).Msg("Failed to record rotation outcome")
	}
}
