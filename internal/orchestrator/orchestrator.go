// Package orchestrator runs the Enforcer's main loop: a fixed-interval
// ticker that reloads config and lock state, composes the effective
// policy, and fans out to each subsystem in a fixed order, the way the
// focusd daemon's Run loop selects between a ticker and signal channel.
package orchestrator

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/focusdragon/enforcer/internal/browser"
	"github.com/focusdragon/enforcer/internal/config"
	"github.com/focusdragon/enforcer/internal/diag"
	"github.com/focusdragon/enforcer/internal/frozen"
	"github.com/focusdragon/enforcer/internal/hosts"
	"github.com/focusdragon/enforcer/internal/netgate"
	"github.com/focusdragon/enforcer/internal/policy"
	"github.com/focusdragon/enforcer/internal/restartlock"
	"github.com/focusdragon/enforcer/internal/sentry"
)

// Orchestrator owns every subsystem and the last-known-good policy, so a
// parse failure on one tick falls back to continuing with the previous
// policy rather than disabling enforcement (spec.md §7).
type Orchestrator struct {
	hosts   *hosts.Engine
	sentry  *sentry.Sentry
	browser *browser.Enforcer
	netgate *netgate.Gate
	frozen  *frozen.Enforcer
	diag    *diag.Server

	lastGood policy.Effective
	haveGood bool
}

// New wires up every subsystem with its default, real-filesystem
// configuration and starts the localhost diagnostics server.
func New() *Orchestrator {
	d := diag.NewServer(diag.DefaultAddr)
	go func() {
		if err := d.ListenAndServe(); err != nil {
			slog.Warn("diagnostics server stopped", "error", err)
		}
	}()

	return &Orchestrator{
		hosts:   hosts.New(),
		sentry:  sentry.New(),
		browser: browser.New(),
		netgate: netgate.New(),
		frozen:  frozen.New(),
		diag:    d,
	}
}

// Run blocks until ctx is cancelled or the process receives SIGTERM or
// SIGINT. SIGHUP forces an immediate out-of-band tick instead of waiting
// for the next ticker fire, matching the reload convention the rest of
// the pack's daemons use.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(config.TickInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Printf("orchestrator starting, tick interval %s", config.TickInterval)
	o.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("orchestrator stopping: context cancelled")
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				log.Println("received SIGHUP, forcing immediate tick")
				o.tick(ctx)
			default:
				log.Printf("received %s, shutting down", sig)
				return
			}
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick runs exactly one pass: load inputs, compose policy, and fan out
// to subsystems in the fixed order Hosts -> Sentry -> Browser ->
// Internet Gate -> Frozen (spec.md §4.1). No subsystem error aborts the
// remaining steps.
func (o *Orchestrator) tick(ctx context.Context) {
	id := uuid.New().String()
	now := time.Now()

	eff, ok := o.loadEffectivePolicy(id, now)
	if !ok {
		eff = o.lastGood
		if !o.haveGood {
			slog.Warn("tick skipped: no usable policy yet", "tick_id", id)
			return
		}
	} else {
		o.lastGood = eff
		o.haveGood = true
	}

	if err := o.hosts.Tick(eff.HostsBlockedSet); err != nil {
		slog.Error("hosts engine tick failed", "tick_id", id, "error", err)
	}

	targets, err := o.sentry.Scan(ctx, eff, now)
	if err != nil {
		slog.Error("process sentry scan failed", "tick_id", id, "error", err)
	} else if len(targets) > 0 {
		o.sentry.Terminate(ctx, targets)
	}

	o.browser.Tick(ctx, eff, now)

	if err := o.netgate.Apply(ctx, eff.InternetGate); err != nil {
		slog.Error("internet gate apply failed", "tick_id", id, "error", err)
	}

	o.frozen.Tick(ctx, eff.Frozen, now)

	o.tickRestartLock(now, id)

	if o.diag != nil {
		o.diag.Update(eff, now)
	}

	slog.Debug("tick complete", "tick_id", id, "is_blocking", eff.IsBlocking, "hosts_blocked", len(eff.HostsBlockedSet))
}

func (o *Orchestrator) loadEffectivePolicy(tickID string, now time.Time) (policy.Effective, bool) {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("loading config failed, retaining last good policy", "tick_id", tickID, "error", err)
		return policy.Effective{}, false
	}
	lock, err := config.LoadLockState()
	if err != nil {
		slog.Error("loading lock state failed, retaining last good policy", "tick_id", tickID, "error", err)
		return policy.Effective{}, false
	}
	return policy.Compose(cfg, lock, now), true
}

func (o *Orchestrator) tickRestartLock(now time.Time, tickID string) {
	rec, err := config.LoadRestartLock()
	if err != nil {
		slog.Error("loading restart lock failed", "tick_id", tickID, "error", err)
		return
	}
	if !rec.IsActive {
		return
	}

	bootTime, err := restartlock.BootTime()
	if err != nil {
		slog.Warn("reading boot time failed", "tick_id", tickID, "error", err)
		return
	}

	updated, changed := restartlock.Evaluate(rec, bootTime, now)
	if !changed {
		return
	}
	if err := config.SaveRestartLock(updated); err != nil {
		slog.Error("persisting restart lock failed", "tick_id", tickID, "error", err)
	}
}
