package asynqnotify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/models"
)

var parent = models.ReminderID{Namespace: "nudge", LocalID: "r1"}

func TestNewTaskRoundTrip(t *testing.T) {
	fire := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	id := parent.InstanceID(models.RoleNotification, fire)

	task, err := NewTask(id, models.Content{Title: "stretch"}, models.FixedTrigger{At: fire})
	require.NoError(t, err)
	assert.Equal(t, constants.NotificationTask, task.Type())

	d, err := Delivered(task.Payload(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, id, d.NativeID)
	assert.Equal(t, "stretch", d.Content.Title)
	assert.Equal(t, fire, d.FireAt)
}

func TestDeliveredRecurringUsesRunMinute(t *testing.T) {
	task, err := NewTask(parent.NotificationID(), models.Content{Title: "standup"}, models.DailyTrigger{Hour: 9})
	require.NoError(t, err)

	ran := time.Date(2024, 3, 5, 9, 0, 12, 0, time.UTC)
	d, err := Delivered(task.Payload(), ran)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), d.FireAt)
	assert.False(t, d.NativeID.IsInstance())
	assert.Equal(t, models.DailyTrigger{Hour: 9}, d.Trigger)
}

func TestDeliveredRejectsCorruptPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":      `{`,
		"unknown kind":  `{"id":"nudge:r1/n","trigger":{"kind":"hourly","data":{}}}`,
		"bad native id": `{"id":"nudge:r1","trigger":{"kind":"daily","data":{"hour":9,"minute":0}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Delivered([]byte(payload), time.Now())
			assert.ErrorIs(t, err, apperrors.ErrDataCorruption)
		})
	}
}

func TestHandlerSkipsRetryOnCorruptPayload(t *testing.T) {
	called := false
	h := NewHandler(func(ctx context.Context, d Delivery) error {
		called = true
		return nil
	})

	err := h.ProcessTask(context.Background(), asynq.NewTask(constants.NotificationTask, []byte(`{`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.False(t, called)
}

func TestHandlerPassesDelivery(t *testing.T) {
	var got Delivery
	h := NewHandler(func(ctx context.Context, d Delivery) error {
		got = d
		return nil
	})

	fire := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	task, err := NewTask(parent.NotificationID(), models.Content{Title: "dentist"}, models.FixedTrigger{At: fire})
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, parent, got.NativeID.Parent)
	assert.Equal(t, fire, got.FireAt)
}

func TestAsynqNotFoundIsRecognised(t *testing.T) {
	assert.True(t, apperrors.IsNotFound(asynq.ErrTaskNotFound))
	assert.Nil(t, apperrors.IgnoreNotFound(asynq.ErrQueueNotFound))
}

func TestNewTaskRejectsNilTrigger(t *testing.T) {
	_, err := NewTask(parent.NotificationID(), models.Content{Title: "x"}, nil)
	assert.Error(t, err)
}

func TestEnqueueErr(t *testing.T) {
	native := parent.InstanceID(models.RoleNotification, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)).String()

	assert.NoError(t, enqueueErr(native, nil))
	assert.NoError(t, enqueueErr(native, asynq.ErrTaskIDConflict), "a concurrent register already armed the instance")
	assert.NoError(t, enqueueErr(native, fmt.Errorf("enqueue: %w", asynq.ErrTaskIDConflict)))

	err := enqueueErr(native, errors.New("dial tcp 127.0.0.1:6379: connection refused"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrBackendUnavailable))
	assert.Contains(t, err.Error(), native)
}
