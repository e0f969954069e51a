package asynqnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
)

// Payload is the body of a reminder task.
type Payload struct {
	ID      string          `json:"id"`
	Content models.Content  `json:"content"`
	Trigger json.RawMessage `json:"trigger"`
}

// Delivery is a fired reminder task, resolved back to its reminder.
type Delivery struct {
	NativeID models.NativeID
	Content  models.Content
	Trigger  models.Trigger
	FireAt   time.Time
}

// NewTask builds the task registered for id.
func NewTask(id models.NativeID, content models.Content, trigger models.Trigger) (*asynq.Task, error) {
	raw, err := models.EncodeTrigger(trigger)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(Payload{ID: id.String(), Content: content, Trigger: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to encode task payload: %w", err)
	}
	return asynq.NewTask(constants.NotificationTask, b), nil
}

// DecodePayload parses a task payload. Bad payloads wrap ErrDataCorruption.
func DecodePayload(b []byte) (Payload, models.Trigger, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return p, nil, fmt.Errorf("%w: task payload: %v", apperrors.ErrDataCorruption, err)
	}
	trigger, err := models.DecodeTrigger(p.Trigger)
	if err != nil {
		return p, nil, err
	}
	return p, trigger, nil
}

// Delivered resolves a payload into a Delivery. Recurring tasks carry no fire
// instant of their own, so the minute the task ran is used.
func Delivered(b []byte, ranAt time.Time) (Delivery, error) {
	p, trigger, err := DecodePayload(b)
	if err != nil {
		return Delivery{}, err
	}
	nid, err := models.ParseNativeID(p.ID)
	if err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", apperrors.ErrDataCorruption, err)
	}

	d := Delivery{NativeID: nid, Content: p.Content, Trigger: trigger}
	switch t := trigger.(type) {
	case models.FixedTrigger:
		d.FireAt = t.At
	case models.CalendarTrigger:
		d.FireAt = t.Instant().UTC()
	default:
		d.FireAt = ranAt.UTC().Truncate(time.Minute)
	}
	if nid.IsInstance() {
		d.FireAt = nid.Fire
	}
	return d, nil
}

// NewHandler adapts fn to an asynq handler. A payload that cannot be decoded
// is dropped with asynq.SkipRetry since retrying cannot fix it.
func NewHandler(fn func(ctx context.Context, d Delivery) error) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		d, err := Delivered(task.Payload(), time.Now())
		if err != nil {
			logger.Error("Dropping undecodable reminder task", "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.Debug("Reminder task fired", "instance", d.NativeID, "fire", d.FireAt)
		return fn(ctx, d)
	}
}
