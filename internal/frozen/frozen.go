// Package frozen implements the Frozen Enforcer (spec.md §4.6): when a
// timed coercive mode is active, it repeatedly locks the screen, logs
// out, shuts down, or restricts the console session to an allowed app
// list, throttled so it cannot machine-gun the same disruptive action.
package frozen

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/focusdragon/enforcer/internal/config"
	"github.com/focusdragon/enforcer/internal/osascript"
	"github.com/focusdragon/enforcer/internal/policy"
	"github.com/focusdragon/enforcer/internal/utils"
)

// Throttle intervals per coercive mode (spec.md §4.6).
const (
	LockScreenThrottle = 15 * time.Second
	LogoutThrottle      = 60 * time.Second
	ShutdownThrottle    = 60 * time.Second
)

// Enforcer tracks when each coercive action last fired so Tick can
// throttle repeated invocations.
type Enforcer struct {
	mu       sync.Mutex
	lastFire map[config.FrozenMode]time.Time
}

// New returns a Frozen Enforcer.
func New() *Enforcer {
	return &Enforcer{lastFire: make(map[config.FrozenMode]time.Time)}
}

// Tick applies the frozen state if active and not expired.
func (e *Enforcer) Tick(ctx context.Context, fs *config.FrozenState, now time.Time) {
	if fs == nil || !fs.IsActive {
		return
	}
	if now.After(fs.ExpiresAt) {
		slog.Debug("frozen state expired, skipping this tick", "mode", fs.Mode)
		return
	}

	user, err := utils.CurrentConsoleUser()
	if err != nil || user == "" {
		slog.Debug("frozen enforcer: no console user, skipping", "error", err)
		return
	}

	switch fs.Mode {
	case config.FrozenLockScreen:
		e.fireThrottled(ctx, fs.Mode, LockScreenThrottle, now, func() error { return osascript.LockScreen(ctx) })
	case config.FrozenLogout:
		e.fireThrottled(ctx, fs.Mode, LogoutThrottle, now, func() error { return osascript.LogoutUser(ctx) })
	case config.FrozenShutdown:
		e.fireThrottled(ctx, fs.Mode, ShutdownThrottle, now, func() error { return osascript.Shutdown(ctx) })
	case config.FrozenLimitedAccess:
		e.enforceLimitedAccess(ctx, fs.AllowedAppBundleIDs)
	}
}

func (e *Enforcer) fireThrottled(ctx context.Context, mode config.FrozenMode, interval time.Duration, now time.Time, action func() error) {
	e.mu.Lock()
	last, ok := e.lastFire[mode]
	if ok && now.Sub(last) < interval {
		e.mu.Unlock()
		return
	}
	e.lastFire[mode] = now
	e.mu.Unlock()

	log.Printf("FROZEN ENFORCER: firing %s", mode)
	if err := action(); err != nil {
		slog.Warn("frozen enforcer action failed", "mode", mode, "error", err)
	}
}

// enforceLimitedAccess terminates every running app not on the allowed
// list, reusing the Process Sentry's protected-bundle invariant so core
// system processes are never touched.
func (e *Enforcer) enforceLimitedAccess(ctx context.Context, allowed []string) {
	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedSet[strings.ToLower(a)] = true
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		slog.Warn("limited access: failed to list processes", "error", err)
		return
	}

	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			continue
		}
		bundleID := bundleIDFromExe(exe)
		if bundleID == "" || policy.ProtectedBundleIDs[bundleID] || allowedSet[bundleID] {
			continue
		}
		if err := p.TerminateWithContext(ctx); err != nil {
			slog.Debug("limited access terminate failed", "pid", p.Pid, "error", err)
		}
	}
}

func bundleIDFromExe(exe string) string {
	idx := strings.Index(exe, ".app/Contents/MacOS/")
	if idx == -1 {
		return ""
	}
	appPath := exe[:idx+4]
	slash := strings.LastIndex(appPath, "/")
	name := strings.ToLower(strings.ReplaceAll(appPath[slash+1:len(appPath)-4], " ", ""))
	return "com.unknown." + name
}
