// Package asynqnotify is a notification backend on top of asynq. One-shot
// triggers become scheduled tasks keyed by their native id; recurring triggers
// become entries on an asynq.Scheduler.
package asynqnotify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/julianstephens/nudge/internal/backend"
	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/window"
)

const listPageSize = 100

func init() {
	apperrors.RegisterNotFound(asynq.ErrTaskNotFound)
	apperrors.RegisterNotFound(asynq.ErrQueueNotFound)
}

type entry struct {
	id  string
	reg backend.Registration
}

type Backend struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	scheduler *asynq.Scheduler
	queue     string
	loc       *time.Location

	mu        sync.Mutex
	recurring map[string]entry
}

var _ backend.NotificationBackend = (*Backend)(nil)

// New connects to Redis through opt. Recurring entries live in the scheduler
// of this process, so Start must be called before they fire.
func New(opt asynq.RedisConnOpt, loc *time.Location) *Backend {
	if loc == nil {
		loc = time.Local
	}
	return &Backend{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: loc}),
		queue:     constants.NotificationQueue,
		loc:       loc,
		recurring: make(map[string]entry),
	}
}

// Start starts the scheduler that enqueues recurring entries.
func (b *Backend) Start() error {
	if err := b.scheduler.Start(); err != nil {
		return fmt.Errorf("%w: failed to start scheduler: %v", apperrors.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *Backend) Close() error {
	b.scheduler.Shutdown()
	if err := b.inspector.Close(); err != nil {
		return err
	}
	return b.client.Close()
}

// Queue is the queue reminder tasks are enqueued on.
func (b *Backend) Queue() string {
	return b.queue
}

func (b *Backend) Register(ctx context.Context, id models.NativeID, content models.Content, trigger models.Trigger) error {
	native := id.String()
	task, err := NewTask(id, content, trigger)
	if err != nil {
		return err
	}

	// Registering an armed id replaces it.
	if err := b.Cancel(ctx, native); err != nil {
		return err
	}

	if spec, ok := models.CronSpec(trigger); ok {
		entryID, err := b.scheduler.Register(spec, task, asynq.Queue(b.queue))
		if err != nil {
			return fmt.Errorf("%w: register %s: %v", apperrors.ErrBackendUnavailable, native, err)
		}
		next, _ := window.NextFire(trigger, time.Now(), b.loc)
		b.mu.Lock()
		b.recurring[native] = entry{id: entryID, reg: backend.Registration{ID: native, Content: content, Trigger: trigger, Next: next}}
		b.mu.Unlock()
		logger.Debug("Registered recurring notification", "instance", native, "cron", spec)
		return nil
	}

	at, ok := window.NextFire(trigger, time.Time{}, b.loc)
	if !ok {
		return fmt.Errorf("register %s: trigger %s has no fire instant", native, trigger.Kind())
	}
	_, err = b.client.EnqueueContext(ctx, task,
		asynq.TaskID(native),
		asynq.ProcessAt(at),
		asynq.Queue(b.queue),
	)
	if err := enqueueErr(native, err); err != nil {
		return err
	}
	logger.Debug("Registered notification", "instance", native, "at", at)
	return nil
}

// enqueueErr maps an enqueue result. Native ids are deterministic, so a task
// id conflict means a concurrent register already armed the same instance.
func enqueueErr(native string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, asynq.ErrTaskIDConflict):
		logger.Debug("Notification already enqueued", "instance", native)
		return nil
	default:
		return fmt.Errorf("%w: enqueue %s: %v", apperrors.ErrBackendUnavailable, native, err)
	}
}

func (b *Backend) Cancel(ctx context.Context, id string) error {
	b.mu.Lock()
	e, ok := b.recurring[id]
	if ok {
		delete(b.recurring, id)
	}
	b.mu.Unlock()
	if ok {
		if err := b.scheduler.Unregister(e.id); err != nil {
			return fmt.Errorf("unregister %s: %w", id, err)
		}
		return nil
	}

	err := b.inspector.DeleteTask(b.queue, id)
	if err == nil || apperrors.IsNotFound(err) {
		return nil
	}
	return fmt.Errorf("%w: delete %s: %v", apperrors.ErrBackendUnavailable, id, err)
}

// ListRegistered returns every scheduled task on the queue plus the recurring entries.
func (b *Backend) ListRegistered(ctx context.Context) ([]backend.Registration, error) {
	var regs []backend.Registration
	for page := 1; ; page++ {
		tasks, err := b.inspector.ListScheduledTasks(b.queue, asynq.PageSize(listPageSize), asynq.Page(page))
		if errors.Is(err, asynq.ErrQueueNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: list scheduled tasks: %v", apperrors.ErrBackendUnavailable, err)
		}
		for _, info := range tasks {
			reg := backend.Registration{ID: info.ID, Next: info.NextProcessAt}
			if p, trigger, err := DecodePayload(info.Payload); err == nil {
				reg.Content = p.Content
				reg.Trigger = trigger
			} else {
				logger.Warn("Scheduled task has an unreadable payload", "instance", info.ID, "error", err)
			}
			regs = append(regs, reg)
		}
		if len(tasks) < listPageSize {
			break
		}
	}

	b.mu.Lock()
	for _, e := range b.recurring {
		regs = append(regs, e.reg)
	}
	b.mu.Unlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].ID < regs[j].ID })
	return regs, nil
}

func (b *Backend) NextFireInstant(trigger models.Trigger, after time.Time) (time.Time, bool) {
	return window.NextFire(trigger, after, b.loc)
}

// CancelAll drops every scheduled task on the queue and every recurring entry.
func (b *Backend) CancelAll(ctx context.Context) error {
	b.mu.Lock()
	entries := b.recurring
	b.recurring = make(map[string]entry)
	b.mu.Unlock()

	var errs []error
	for native, e := range entries {
		if err := b.scheduler.Unregister(e.id); err != nil {
			errs = append(errs, fmt.Errorf("unregister %s: %w", native, err))
		}
	}
	n, err := b.inspector.DeleteAllScheduledTasks(b.queue)
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		errs = append(errs, fmt.Errorf("%w: delete scheduled tasks: %v", apperrors.ErrBackendUnavailable, err))
	}
	logger.Debug("Cancelled all notifications", "tasks", n, "recurring", len(entries))
	return errors.Join(errs...)
}

// NewServer builds the worker that executes reminder tasks from the queue.
func NewServer(opt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{constants.NotificationQueue: 1},
		Logger:      logger.Sprint{},
	})
}

// NewMux routes reminder tasks to handler.
func NewMux(handler asynq.Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(constants.NotificationTask, handler)
	return mux
}
