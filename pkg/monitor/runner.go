package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner ticks a Controller on a schedule
type Runner struct {
	controller *Controller
	cron       *cron.Cron
	interval   time.Duration
	mu         sync.Mutex
	entry      cron.EntryID
	ctx        context.Context
	cancel     context.CancelFunc
	log        logrus.FieldLogger
}

// NewRunner creates a runner ticking controller every interval. The cron
// scheduler has one second resolution.
func NewRunner(controller *Controller, interval time.Duration) *Runner {
	log := logrus.WithField("component", "monitor")
	logger := cron.PrintfLogger(log)

	return &Runner{
		controller: controller,
		cron:       cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		interval:   interval,
		log:        log,
	}
}

// Start connects the devices, ticks once and schedules the following
// ticks
func (r *Runner) Start(ctx context.Context) error {
	if r.interval < time.Second {
		return fmt.Errorf("interval %s is below one second", r.interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return fmt.Errorf("monitor already started")
	}

	if err := r.controller.Connect(); err != nil {
		_ = r.controller.Disconnect()
		return fmt.Errorf("failed to connect devices: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	if err := r.controller.Tick(r.ctx); err != nil {
		r.log.Warnf("initial tick failed: %v", err)
	}

	entry, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), r.tick)
	if err != nil {
		r.cancel()
		r.cancel = nil
		_ = r.controller.Disconnect()
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	r.entry = entry

	r.cron.Start()
	r.log.Infof("monitoring %d devices every %s", len(r.controller.Devices()), r.interval)
	return nil
}

// AddJob runs fn on a standard five-field cron schedule while the runner
// is started. Failures are logged.
func (r *Runner) AddJob(name, spec string, fn func(context.Context) error) error {
	_, err := r.cron.AddFunc(spec, func() {
		if r.ctx == nil || r.ctx.Err() != nil {
			return
		}
		if err := fn(r.ctx); err != nil {
			r.log.Warnf("%s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule for %s: %w", name, err)
	}
	return nil
}

func (r *Runner) tick() {
	select {
	case <-r.ctx.Done():
		return
	default:
	}

	if err := r.controller.Tick(r.ctx); err != nil {
		r.log.Warnf("tick failed: %v", err)
	}
}

// Stop stops ticking, waits for a running tick and disconnects the
// devices
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return nil
	}
	r.cancel()
	r.cancel = nil

	r.cron.Remove(r.entry)
	ctx := r.cron.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		r.log.Warn("timeout waiting for the running tick")
	}

	return r.controller.Disconnect()
}

// Run starts the runner and blocks until ctx is done
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return r.Stop()
}

// Next returns when the next tick is due, or false when not running
func (r *Runner) Next() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return time.Time{}, false
	}
	return r.cron.Entry(r.entry).Next, true
}
