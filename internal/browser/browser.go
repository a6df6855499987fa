package browser

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/focusdragon/enforcer/internal/osascript"
	"github.com/focusdragon/enforcer/internal/policy"
	"github.com/focusdragon/enforcer/internal/utils"
)

// Enforcer runs the Browser Enforcer's tick: verify every running
// supported browser has its native-messaging-host manifest installed and
// a fresh, compliant extension heartbeat; special-case Safari's
// private-window check; and force-quit anything unsupported or
// non-compliant, but only when the effective policy requires a browser
// extension at all.
type Enforcer struct{}

// New returns a Browser Enforcer.
func New() *Enforcer { return &Enforcer{} }

// Tick evaluates and force-quits non-compliant browsers.
func (e *Enforcer) Tick(ctx context.Context, eff policy.Effective, now time.Time) {
	if !eff.IsBlocking || !eff.RequireBrowserExtension {
		return
	}

	running, err := runningCatalogBrowsers(ctx)
	if err != nil {
		slog.Warn("browser enforcer: failed to list processes", "error", err)
		return
	}

	homeDir := e.consoleUserHomeDir()

	for _, entry := range running {
		if entry.BundleID == "com.apple.Safari" {
			priv, err := SafariPrivateWindowDetected(ctx)
			if err != nil {
				slog.Debug("safari private window check failed", "error", err)
				continue
			}
			if priv {
				e.forceQuit(ctx, entry, "private window bypasses extension enforcement")
			}
			continue
		}

		if reason, ok := e.complianceViolation(ctx, entry, homeDir, now); ok {
			e.forceQuit(ctx, entry, reason)
		}
	}

	unsupported, err := DetectUnsupported(ctx)
	if err != nil {
		slog.Debug("unsupported browser heuristic scan failed", "error", err)
		return
	}
	for _, m := range unsupported {
		if m.Score < scoreThreshold {
			continue
		}
		log.Printf("BROWSER ENFORCER: unsupported browser detected name=%s pid=%d score=%d", m.Name, m.PID, m.Score)
		if err := osascript.QuitApp(ctx, m.Name); err != nil {
			slog.Warn("failed to quit unsupported browser", "name", m.Name, "error", err)
		}
	}
}

// complianceViolation runs the manifest-presence and heartbeat checks
// from spec.md §4.4 step 2 against one running non-Safari browser,
// returning the first violation found.
func (e *Enforcer) complianceViolation(ctx context.Context, entry Entry, homeDir string, now time.Time) (string, bool) {
	if manifestPath := ManifestPath(homeDir, entry); homeDir != "" && manifestPath != "" {
		if _, err := os.Stat(manifestPath); err != nil {
			return "native-messaging-host manifest missing", true
		}
	}

	fh, err := ReadFamilyHeartbeats(entry.HeartbeatKey, now)
	if err != nil {
		slog.Warn("browser enforcer: heartbeat read failed", "browser", entry.DisplayName, "error", err)
		return "", false
	}
	if !fh.Found() {
		return "no extension heartbeat present", true
	}
	if !fh.AllFresh {
		return "stale extension heartbeat", true
	}
	if !fh.AllIncognitoAllowed() {
		return "incognito/private browsing not reported as allowed", true
	}

	if visible, err := osascript.WindowCount(ctx, entry.ProcessName); err == nil {
		if fh.TotalWindowCount() < visible {
			return "reported window count below visible window count", true
		}
	} else {
		slog.Debug("browser enforcer: window count check skipped", "browser", entry.DisplayName, "error", err)
	}

	return "", false
}

// consoleUserHomeDir resolves the logged-in console user's home
// directory for manifest lookups, returning "" (which makes every
// manifest check a no-op) when nobody is logged in.
func (e *Enforcer) consoleUserHomeDir() string {
	user, err := utils.CurrentConsoleUser()
	if err != nil || user == "" {
		return ""
	}
	home, err := utils.HomeDirForUser(user)
	if err != nil {
		return ""
	}
	return home
}

func (e *Enforcer) forceQuit(ctx context.Context, entry Entry, reason string) {
	log.Printf("BROWSER ENFORCER: force-quitting %s: %s", entry.DisplayName, reason)
	if err := osascript.QuitApp(ctx, entry.ProcessName); err != nil {
		slog.Warn("graceful quit failed, escalating to process kill", "browser", entry.DisplayName, "error", err)
		killByName(ctx, entry.ProcessName)
	}
}

func killByName(ctx context.Context, name string) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return
	}
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil || n != name {
			continue
		}
		_ = p.KillWithContext(ctx)
	}
}

func runningCatalogBrowsers(ctx context.Context) ([]Entry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []Entry
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		for _, entry := range Catalog {
			if name == entry.ProcessName && !seen[entry.BundleID] {
				seen[entry.BundleID] = true
				out = append(out, entry)
			}
		}
	}
	return out, nil
}
