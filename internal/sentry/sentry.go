// Package sentry implements the Process Sentry (spec.md §4.3): it scans
// running processes each tick and terminates anything on the
// block-list or, in whitelist-only mode, anything not on the whitelist,
// honoring app exceptions and never touching a protected bundle id.
package sentry

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"howett.net/plist"

	"github.com/focusdragon/enforcer/internal/policy"
)

// GracePeriod is how long a targeted process gets to exit after a
// graceful terminate before the Sentry escalates to SIGKILL. Kept short
// so the sentry still satisfies the ≤3s termination-latency property.
const GracePeriod = 1500 * time.Millisecond

// Target describes one process chosen for termination this tick.
type Target struct {
	PID      int32
	Name     string
	ExePath  string
	BundleID string
	Reason   string
}

// Sentry tracks recently-terminated bundles to log a respawn warning
// when the same app is killed twice in quick succession, the way the
// teacher's state package tracked repeated events per key.
type Sentry struct {
	mu             sync.Mutex
	lastKilledAt   map[string]time.Time
}

// New returns a Sentry ready to scan.
func New() *Sentry {
	return &Sentry{lastKilledAt: make(map[string]time.Time)}
}

// Scan lists running processes and returns the ones that must be
// terminated under the effective policy. It is pure aside from the
// process listing itself, so the decision logic is unit-testable via
// classify without touching gopsutil.
func (s *Sentry) Scan(ctx context.Context, eff policy.Effective, now time.Time) ([]Target, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var targets []Target
	for _, p := range procs {
		bundleID := bundleIDFor(p)
		if bundleID == "" || policy.ProtectedBundleIDs[bundleID] {
			continue
		}
		exe, _ := p.ExeWithContext(ctx)
		reason, kill := classify(bundleID, exe, eff, now)
		if !kill {
			continue
		}
		name, _ := p.NameWithContext(ctx)
		targets = append(targets, Target{PID: p.Pid, Name: name, ExePath: exe, BundleID: bundleID, Reason: reason})
	}
	return targets, nil
}

// classify decides whether a bundle id should be terminated under eff.
// Exported indirectly through Scan but kept separate so tests can drive
// it with synthetic bundle ids and exe paths rather than real running
// processes. Whitelist-only mode (spec.md §4.3 step 4) takes priority
// over the plain block-list when configured: every process outside the
// allowed set, under /Applications/ or /Users/, is a target.
func classify(bundleID, exePath string, eff policy.Effective, now time.Time) (reason string, kill bool) {
	if !eff.IsBlocking {
		return "", false
	}

	if appExceptionAllows(bundleID, eff, now) {
		return "", false
	}

	if len(eff.WhitelistOnlyApps) > 0 {
		if !IsWhitelistOnlyViolation(bundleID, eff.WhitelistOnlyApps) {
			return "", false
		}
		if !underUserAppPath(exePath) {
			return "", false
		}
		return "whitelist-only violation", true
	}

	for _, app := range eff.BlockedApps {
		if strings.EqualFold(app.BundleIdentifier, bundleID) {
			return "blocked app", true
		}
	}

	return "", false
}

// underUserAppPath restricts whitelist-only termination to user-facing
// applications, the same scope spec.md §4.3 step 4 names explicitly —
// daemons and CLI tools living elsewhere are never swept up.
func underUserAppPath(exePath string) bool {
	return strings.HasPrefix(exePath, "/Applications/") || strings.HasPrefix(exePath, "/Users/")
}

func appExceptionAllows(bundleID string, eff policy.Effective, now time.Time) bool {
	for _, ex := range eff.AppExceptions {
		if strings.EqualFold(ex.BundleIdentifier, bundleID) && policy.AppExceptionActive(ex, now) {
			return true
		}
	}
	return false
}

// Terminate kills each target, trying a graceful terminate first and
// escalating to SIGKILL if the process survives GracePeriod
// (spec.md §4.3 step: "graceful terminate, then force-kill").
func (s *Sentry) Terminate(ctx context.Context, targets []Target) {
	for _, t := range targets {
		s.terminateOne(ctx, t)
	}
}

func (s *Sentry) terminateOne(ctx context.Context, t Target) {
	proc, err := process.NewProcess(t.PID)
	if err != nil {
		slog.Debug("process already gone before termination", "pid", t.PID, "bundle", t.BundleID)
		return
	}

	if err := proc.TerminateWithContext(ctx); err != nil {
		slog.Debug("graceful terminate failed, will force kill", "pid", t.PID, "error", err)
	}

	deadline := time.Now().Add(GracePeriod)
	for time.Now().Before(deadline) {
		if running, _ := proc.IsRunningWithContext(ctx); !running {
			s.logTermination(t, false)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := proc.KillWithContext(ctx); err != nil {
		slog.Warn("force kill failed", "pid", t.PID, "bundle", t.BundleID, "error", err)
		return
	}
	s.logTermination(t, true)
}

func (s *Sentry) logTermination(t Target, forced bool) {
	s.mu.Lock()
	last, seen := s.lastKilledAt[t.BundleID]
	respawned := seen && time.Since(last) < 10*time.Second
	s.lastKilledAt[t.BundleID] = time.Now()
	s.mu.Unlock()

	log.Printf("TERMINATED pid=%d bundle=%s name=%s reason=%q forced=%v", t.PID, t.BundleID, t.Name, t.Reason, forced)
	if respawned {
		log.Printf("RESPAWN WARNING: %s was relaunched within 10s of being terminated", t.BundleID)
	}
}

// bundleIDFor reads the CFBundleIdentifier from the Info.plist of the app
// bundle containing a process's executable (.../Foo.app/Contents/MacOS/Foo).
// Processes outside an app bundle (daemons, CLI tools), or whose bundle
// has no readable Info.plist, have no bundle id and are never targeted
// by block-app rules.
func bundleIDFor(p *process.Process) string {
	exe, err := p.Exe()
	if err != nil || exe == "" {
		return ""
	}
	idx := strings.Index(exe, ".app/Contents/MacOS/")
	if idx == -1 {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(exe[:idx+4], "Contents", "Info.plist"))
	if err != nil {
		return ""
	}
	var info map[string]interface{}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return ""
	}
	id, _ := info["CFBundleIdentifier"].(string)
	return id
}

func sanitizeBundleComponent(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// IsWhitelistOnlyViolation reports whether bundleID should be killed
// under whitelist-only mode: anything not explicitly allowed is
// terminated (spec.md §6 whitelistOnlyApps).
func IsWhitelistOnlyViolation(bundleID string, whitelist []string) bool {
	for _, allowed := range whitelist {
		if strings.EqualFold(allowed, bundleID) {
			return false
		}
	}
	return true
}
