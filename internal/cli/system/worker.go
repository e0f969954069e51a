package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/nudge/internal/backend/asynqnotify"
	"github.com/julianstephens/nudge/internal/backend/cronalarm"
	"github.com/julianstephens/nudge/internal/calendar"
	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/events"
	"github.com/julianstephens/nudge/internal/lifecycle"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/notifier"
	"github.com/julianstephens/nudge/internal/retry"
)

// WorkerCmd is the long-running host: it executes reminder tasks from the
// queue, runs alarms, and keeps the schedule reconciled. SIGHUP asks for an
// immediate foreground pass, e.g. after another process edited reminders.
type WorkerCmd struct {
	Concurrency int    `default:"${worker_concurrency}" help:"Number of reminder tasks delivered in parallel."`
	Calendar    string `type:"path" help:"Exported calendar file whose edits are applied to imported reminders."`
}

func (c *WorkerCmd) Run(ctx *cli.Context) error {
	if ctx.Backend != cli.BackendAsynq {
		return fmt.Errorf("the worker needs the %s backend", cli.BackendAsynq)
	}
	base := ctx.Context()

	err := retry.Do(base, func(rctx context.Context) error {
		err := pingRedis(rctx, ctx)
		if err != nil {
			logger.Warn("Waiting for Redis", "addr", ctx.Redis.Addr, "error", err)
		}
		return err
	}, constants.RedisReadyAttempts, constants.RedisReadyDelay)
	if err != nil {
		return err
	}

	ctx.PerformAutomaticBackup(base)

	tray := notifier.New()
	rt, err := ctx.Open(base, func(f cronalarm.Fired) {
		deliverAlarm(base, tray, f)
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := lifecycle.Config{
		Engine: rt.Engine,
		Store:  ctx.Store,
		Clock:  ctx.Clock,
	}
	if c.Calendar != "" {
		cfg.Calendar = calendar.FileProvider{Path: c.Calendar}
	}
	host := lifecycle.New(cfg)

	srv := asynqnotify.NewServer(ctx.Redis, c.Concurrency)
	handler := asynqnotify.NewHandler(func(tctx context.Context, d asynqnotify.Delivery) error {
		return deliverNotification(tctx, tray, rt.Engine, host, d)
	})

	if err := rt.Queue.Start(); err != nil {
		return err
	}
	rt.Alarms.Start()
	logger.Info("Worker started", "redis", ctx.Redis.Addr, "concurrency", c.Concurrency)

	warnings, stopWarnings := rt.Bus.Subscribe(events.TopicWarning)
	defer stopWarnings()
	summaries, stopSummaries := rt.Bus.Subscribe(events.TopicSummary)
	defer stopSummaries()

	g, gctx := errgroup.WithContext(base)
	g.Go(func() error {
		forwardAlerts(gctx, tray, warnings, summaries)
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(asynqnotify.NewMux(handler)); err != nil {
			return fmt.Errorf("failed to start task server: %w", err)
		}
		<-gctx.Done()
		srv.Shutdown()
		return nil
	})
	g.Go(func() error {
		return host.Run(gctx)
	})
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("SIGHUP received, resyncing")
				host.Notify()
			}
		}
	})

	err = g.Wait()
	<-rt.Alarms.Stop().Done()
	logger.Info("Worker stopped")
	return err
}

type deliveryRecorder interface {
	RecordDelivery(ctx context.Context, id models.ReminderID, fire time.Time, source models.OccurrenceSource) error
}

// deliverNotification shows a fired reminder and records it. A missing tray
// is logged rather than retried; the occurrence is still recorded.
func deliverNotification(ctx context.Context, tray *notifier.Notifier, engine deliveryRecorder, host *lifecycle.Host, d asynqnotify.Delivery) error {
	link := lifecycle.DeepLink{ReminderID: d.NativeID.Parent, FireAt: d.FireAt}.String()
	if err := tray.Notify(ctx, d.Content, link, false); err != nil {
		if !errors.Is(err, notifier.ErrTrayNotRunning) {
			return err
		}
		logger.Warn("Reminder fired but nudge-tray is not running", "reminder", d.NativeID.Parent, "title", d.Content.Title)
	}
	if err := engine.RecordDelivery(ctx, d.NativeID.Parent, d.FireAt, models.SourceForeground); err != nil {
		logger.Warn("Failed to record delivery", "reminder", d.NativeID.Parent, "error", err)
	}
	// A spent window instance or one-shot trigger needs upkeep.
	host.Notify()
	return nil
}

// forwardAlerts shows engine warnings and alert-mode summaries on the tray.
func forwardAlerts(ctx context.Context, tray *notifier.Notifier, warnings, summaries <-chan events.Event) {
	for {
		var ev events.Event
		select {
		case <-ctx.Done():
			return
		case ev = <-warnings:
		case ev = <-summaries:
		}
		logger.Info("Alert", "topic", ev.Topic, "message", ev.Message)
		content := models.Content{Title: constants.AppName, Body: ev.Message}
		if err := tray.Notify(ctx, content, "", false); err != nil && !errors.Is(err, notifier.ErrTrayNotRunning) {
			logger.Warn("Failed to show alert", "error", err)
		}
	}
}

func deliverAlarm(ctx context.Context, tray *notifier.Notifier, f cronalarm.Fired) {
	link := ""
	if id, err := models.ParseNativeID(f.NativeID); err == nil {
		link = lifecycle.DeepLink{ReminderID: id.Parent, FireAt: f.At}.String()
	}
	if err := tray.Notify(ctx, f.Content, link, true); err != nil {
		logger.Warn("Failed to raise alarm", "alarm", f.NativeID, "error", err)
	}
}

// OpenCmd handles a deep link opened from a notification.
type OpenCmd struct {
	Link string `arg:"" help:"Deep link, e.g. nudge://reminder/<id>?fire=<unix>."`
}

func (c *OpenCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	host := lifecycle.New(lifecycle.Config{Engine: rt.Engine, Store: ctx.Store, Clock: ctx.Clock})
	recorded, err := host.ConsumeDeepLink(base, c.Link)
	if err != nil {
		return err
	}
	if recorded {
		ctx.Println("✓ Reminder marked handled")
	}
	return nil
}
