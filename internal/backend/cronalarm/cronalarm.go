// Package cronalarm is an in-process alarm backend built on robfig/cron.
// Recurring alarms are cron entries; one-shot alarms use a schedule that
// fires once and then reports no further activation.
package cronalarm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/julianstephens/nudge/internal/backend"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/window"
)

// Fired is passed to the delivery callback when an alarm goes off.
type Fired struct {
	NativeID string
	Content  models.Content
	Category string
	At       time.Time
}

// once fires at a single instant. After that Next returns the zero time,
// which cron treats as never.
type once struct {
	at time.Time
}

func (o once) Next(t time.Time) time.Time {
	if o.at.After(t) {
		return o.at
	}
	return time.Time{}
}

type alarm struct {
	entry cron.EntryID
	reg   backend.Registration
}

type Alarms struct {
	cron    *cron.Cron
	loc     *time.Location
	deliver func(Fired)

	mu     sync.Mutex
	alarms map[string]alarm
}

var (
	_ backend.AlarmBackend      = (*Alarms)(nil)
	_ backend.AlarmLister       = (*Alarms)(nil)
	_ backend.CategoryCanceller = (*Alarms)(nil)
)

// New builds an alarm runner evaluating recurring alarms in loc. deliver is
// called from the cron goroutine each time an alarm fires.
func New(loc *time.Location, deliver func(Fired)) *Alarms {
	if loc == nil {
		loc = time.Local
	}
	return &Alarms{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{})),
		loc:     loc,
		deliver: deliver,
		alarms:  make(map[string]alarm),
	}
}

func (a *Alarms) Start() {
	a.cron.Start()
}

// Stop stops the runner. The returned context is done once running deliveries finish.
func (a *Alarms) Stop() context.Context {
	return a.cron.Stop()
}

func (a *Alarms) schedule(trigger models.Trigger) (cron.Schedule, error) {
	if spec, ok := models.CronSpec(trigger); ok {
		s, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
		}
		return s, nil
	}
	at, ok := window.NextFire(trigger, time.Time{}, a.loc)
	if !ok {
		return nil, fmt.Errorf("trigger %s cannot be armed as an alarm", trigger.Kind())
	}
	return once{at: at}, nil
}

func (a *Alarms) RegisterAlarm(ctx context.Context, id models.NativeID, trigger models.Trigger, cfg backend.AlarmConfig) (string, error) {
	native := id.String()
	if trigger == nil {
		return "", fmt.Errorf("register alarm %s: trigger cannot be nil", native)
	}
	sched, err := a.schedule(trigger)
	if err != nil {
		return "", fmt.Errorf("register alarm %s: %w", native, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.alarms[native]; ok {
		a.cron.Remove(old.entry)
	}
	entry := a.cron.Schedule(sched, cron.FuncJob(func() { a.fire(native) }))
	a.alarms[native] = alarm{
		entry: entry,
		reg: backend.Registration{
			ID:       native,
			Content:  cfg.Content,
			Trigger:  trigger,
			Category: cfg.Category,
			Next:     sched.Next(time.Now().In(a.loc)),
		},
	}
	logger.Debug("Armed alarm", "instance", native, "category", cfg.Category)
	return native, nil
}

func (a *Alarms) fire(native string) {
	a.mu.Lock()
	al, ok := a.alarms[native]
	if ok && !models.IsRecurring(al.reg.Trigger) {
		// A one-shot alarm is no longer armed once it has gone off.
		a.cron.Remove(al.entry)
		delete(a.alarms, native)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	logger.Info("Alarm fired", "instance", native, "category", al.reg.Category)
	if a.deliver != nil {
		a.deliver(Fired{NativeID: native, Content: al.reg.Content, Category: al.reg.Category, At: time.Now()})
	}
}

func (a *Alarms) CancelAlarm(ctx context.Context, nativeID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if al, ok := a.alarms[nativeID]; ok {
		a.cron.Remove(al.entry)
		delete(a.alarms, nativeID)
	}
	return nil
}

// CheckCapability always reports an authorized alarm subsystem: the runner
// lives in this process and needs no grant.
func (a *Alarms) CheckCapability(ctx context.Context) (backend.Capability, error) {
	return backend.Capability{Supported: true, RequiresPermission: false, Authorized: true}, nil
}

func (a *Alarms) ListAlarms(ctx context.Context) ([]backend.Registration, error) {
	return a.ListByCategory(ctx, "")
}

// ListByCategory lists armed alarms in category, or all of them when category is empty.
func (a *Alarms) ListByCategory(ctx context.Context, category string) ([]backend.Registration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	regs := make([]backend.Registration, 0, len(a.alarms))
	for _, al := range a.alarms {
		if category != "" && al.reg.Category != category {
			continue
		}
		reg := al.reg
		if e := a.cron.Entry(al.entry); e.Valid() && !e.Next.IsZero() {
			reg.Next = e.Next
		}
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].ID < regs[j].ID })
	return regs, nil
}

func (a *Alarms) CancelByCategory(ctx context.Context, category string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for native, al := range a.alarms {
		if al.reg.Category != category {
			continue
		}
		a.cron.Remove(al.entry)
		delete(a.alarms, native)
		n++
	}
	return n, nil
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
