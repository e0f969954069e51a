// Package memory provides deterministic in-process backends. They back the
// --backend=memory mode and every engine test.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/julianstephens/nudge/internal/backend"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/window"
)

// registry is the shared core of both fakes.
type registry struct {
	mu       sync.Mutex
	items    map[string]backend.Registration
	capacity int
	loc      *time.Location

	// ReportNotFound makes Cancel return ErrNotFound for unknown ids, like
	// platforms that throw instead of ignoring the call.
	reportNotFound bool
	failRegister   func(id string) error
	failCancel     func(id string) error

	registerCalls int
	cancelCalls   int
}

func newRegistry(capacity int, loc *time.Location) *registry {
	if loc == nil {
		loc = time.UTC
	}
	return &registry{
		items:    make(map[string]backend.Registration),
		capacity: capacity,
		loc:      loc,
	}
}

func (r *registry) register(reg backend.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registerCalls++
	if r.failRegister != nil {
		if err := r.failRegister(reg.ID); err != nil {
			return err
		}
	}
	if _, exists := r.items[reg.ID]; !exists && r.capacity > 0 && len(r.items) >= r.capacity {
		return fmt.Errorf("register %s: %w", reg.ID, apperrors.ErrCapacity)
	}
	if !models.IsRecurring(reg.Trigger) {
		if next, ok := window.NextFire(reg.Trigger, time.Time{}, r.loc); ok {
			reg.Next = next
		}
	}
	r.items[reg.ID] = reg
	return nil
}

func (r *registry) cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelCalls++
	if r.failCancel != nil {
		if err := r.failCancel(id); err != nil {
			return err
		}
	}
	if _, ok := r.items[id]; !ok {
		if r.reportNotFound {
			return fmt.Errorf("cancel %s: %w", id, apperrors.ErrNotFound)
		}
		return nil
	}
	delete(r.items, id)
	return nil
}

func (r *registry) list(category string) []backend.Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := make([]backend.Registration, 0, len(r.items))
	for _, reg := range r.items {
		if category != "" && reg.Category != category {
			continue
		}
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].ID < regs[j].ID })
	return regs
}

// Has reports whether id is armed.
func (r *registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	return ok
}

// Get returns the armed registration for id.
func (r *registry) Get(id string) (backend.Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.items[id]
	return reg, ok
}

// Len returns the number of armed items.
func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// IDs returns every armed id in sorted order.
func (r *registry) IDs() []string {
	regs := r.list("")
	ids := make([]string, len(regs))
	for i, reg := range regs {
		ids[i] = reg.ID
	}
	return ids
}

// Inject arms a registration directly, bypassing capacity and failure hooks.
func (r *registry) Inject(reg backend.Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[reg.ID] = reg
}

// Remove drops an item without counting a cancel call, as if the platform
// fired or lost it.
func (r *registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

// FailRegister installs a hook consulted before every registration.
func (r *registry) FailRegister(fn func(id string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failRegister = fn
}

// FailCancel installs a hook consulted before every cancellation.
func (r *registry) FailCancel(fn func(id string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCancel = fn
}

// ReportNotFound toggles whether cancelling an unknown id is an error.
func (r *registry) ReportNotFound(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reportNotFound = on
}

// Calls returns the number of register and cancel calls made so far.
func (r *registry) Calls() (register, cancel int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerCalls, r.cancelCalls
}

// Notifications is an in-memory NotificationBackend with an optional cap on
// simultaneously armed notifications.
type Notifications struct {
	*registry
}

var _ backend.NotificationBackend = (*Notifications)(nil)

// NewNotifications returns a backend that interprets recurring triggers in loc.
// A capacity of zero means unlimited.
func NewNotifications(capacity int, loc *time.Location) *Notifications {
	return &Notifications{registry: newRegistry(capacity, loc)}
}

func (n *Notifications) Register(ctx context.Context, id models.NativeID, content models.Content, trigger models.Trigger) error {
	if trigger == nil {
		return fmt.Errorf("register %s: trigger cannot be nil", id)
	}
	return n.register(backend.Registration{ID: id.String(), Content: content, Trigger: trigger})
}

func (n *Notifications) Cancel(ctx context.Context, id string) error {
	return n.cancel(id)
}

func (n *Notifications) ListRegistered(ctx context.Context) ([]backend.Registration, error) {
	return n.list(""), nil
}

func (n *Notifications) NextFireInstant(trigger models.Trigger, after time.Time) (time.Time, bool) {
	return window.NextFire(trigger, after, n.loc)
}

func (n *Notifications) CancelAll(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = make(map[string]backend.Registration)
	return nil
}

// Alarms is an in-memory AlarmBackend that can enumerate and group its alarms.
type Alarms struct {
	*registry
	capMu      sync.Mutex
	capability backend.Capability
}

var (
	_ backend.AlarmBackend      = (*Alarms)(nil)
	_ backend.AlarmLister       = (*Alarms)(nil)
	_ backend.CategoryCanceller = (*Alarms)(nil)
)

func NewAlarms(capacity int, loc *time.Location) *Alarms {
	return &Alarms{
		registry:   newRegistry(capacity, loc),
		capability: backend.Capability{Supported: true, RequiresPermission: true, Authorized: true},
	}
}

func (a *Alarms) RegisterAlarm(ctx context.Context, id models.NativeID, trigger models.Trigger, cfg backend.AlarmConfig) (string, error) {
	if trigger == nil {
		return "", fmt.Errorf("register alarm %s: trigger cannot be nil", id)
	}
	native := id.String()
	if err := a.register(backend.Registration{ID: native, Content: cfg.Content, Trigger: trigger, Category: cfg.Category}); err != nil {
		return "", err
	}
	return native, nil
}

func (a *Alarms) CancelAlarm(ctx context.Context, nativeID string) error {
	return a.cancel(nativeID)
}

func (a *Alarms) CheckCapability(ctx context.Context) (backend.Capability, error) {
	a.capMu.Lock()
	defer a.capMu.Unlock()
	return a.capability, nil
}

// SetCapability changes what CheckCapability reports.
func (a *Alarms) SetCapability(c backend.Capability) {
	a.capMu.Lock()
	defer a.capMu.Unlock()
	a.capability = c
}

func (a *Alarms) ListAlarms(ctx context.Context) ([]backend.Registration, error) {
	return a.list(""), nil
}

func (a *Alarms) ListByCategory(ctx context.Context, category string) ([]backend.Registration, error) {
	return a.list(category), nil
}

func (a *Alarms) CancelByCategory(ctx context.Context, category string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for id, reg := range a.items {
		if reg.Category == category {
			delete(a.items, id)
			n++
		}
	}
	return n, nil
}

// opaque hides enumeration so callers see a platform without per-item listing.
type opaque struct {
	inner backend.AlarmBackend
}

// Opaque wraps an alarm backend so that it implements only backend.AlarmBackend.
func Opaque(a backend.AlarmBackend) backend.AlarmBackend {
	return opaque{inner: a}
}

func (o opaque) RegisterAlarm(ctx context.Context, id models.NativeID, trigger models.Trigger, cfg backend.AlarmConfig) (string, error) {
	return o.inner.RegisterAlarm(ctx, id, trigger, cfg)
}

func (o opaque) CancelAlarm(ctx context.Context, nativeID string) error {
	return o.inner.CancelAlarm(ctx, nativeID)
}

func (o opaque) CheckCapability(ctx context.Context) (backend.Capability, error) {
	return o.inner.CheckCapability(ctx)
}

// Permissions is a settable PermissionSource.
type Permissions struct {
	mu    sync.Mutex
	state models.PermissionState
	reads int
}

var _ backend.PermissionSource = (*Permissions)(nil)

func NewPermissions(n models.NotificationPermission, a models.AlarmPermission) *Permissions {
	return &Permissions{state: models.PermissionState{Notification: n, Alarm: a}}
}

func (p *Permissions) Set(n models.NotificationPermission, a models.AlarmPermission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = models.PermissionState{Notification: n, Alarm: a}
}

func (p *Permissions) NotificationPermission(ctx context.Context) (models.NotificationPermission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	return p.state.Notification, nil
}

func (p *Permissions) AlarmPermission(ctx context.Context) (models.AlarmPermission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Alarm, nil
}

// Reads returns how many times the notification permission was read.
func (p *Permissions) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}
