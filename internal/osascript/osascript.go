// Package osascript wraps macOS GUI scripting invocations behind typed
// Go functions. Every call builds an explicit argument array for
// osascript instead of interpolating strings into a shell command, per
// spec.md's Design Notes on external command invocation.
package osascript

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

// run executes an AppleScript program passed as -e arguments, one per
// line, and returns its trimmed stdout.
func run(ctx context.Context, lines ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	args := make([]string, 0, len(lines)*2)
	for _, l := range lines {
		args = append(args, "-e", l)
	}

	cmd := exec.CommandContext(ctx, "osascript", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("osascript: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}

// WindowCount returns how many windows a running application currently
// has open, used by the Browser Enforcer to check that a supported
// browser's heartbeats report at least as many windows as are open.
func WindowCount(ctx context.Context, appName string) (int, error) {
	script := fmt.Sprintf(`tell application "System Events" to tell process %q to count windows`, appName)
	out, err := run(ctx, script)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}

// HasPrivateWindow asks whether any window of appName appears to be a
// private/incognito window, identified by window title heuristics the
// way Safari's private windows report their titles differently from
// System Events. Browsers that don't expose this reliably should be
// treated as "unknown" by the caller rather than trusted blindly.
func HasPrivateWindow(ctx context.Context, appName string) (bool, error) {
	script := fmt.Sprintf(`tell application "System Events" to tell process %q to get name of every window`, appName)
	out, err := run(ctx, script)
	if err != nil {
		return false, err
	}
	lower := strings.ToLower(out)
	return strings.Contains(lower, "private") || strings.Contains(lower, "incognito"), nil
}

// QuitApp asks an application to quit gracefully via Apple Events,
// giving it the chance to run its own shutdown handlers before the
// Browser Enforcer escalates to a process-level kill.
func QuitApp(ctx context.Context, appName string) error {
	script := fmt.Sprintf(`tell application %q to quit`, appName)
	_, err := run(ctx, script)
	return err
}

// LockScreen immediately locks the console session (Frozen Enforcer
// lockScreen mode).
func LockScreen(ctx context.Context) error {
	_, err := run(ctx, `tell application "System Events" to keystroke "q" using {control down, command down}`)
	return err
}

// LogoutUser logs out the current console session (Frozen Enforcer
// logout mode).
func LogoutUser(ctx context.Context) error {
	_, err := run(ctx, `tell application "System Events" to log out`)
	return err
}

// Shutdown powers the machine off (Frozen Enforcer shutdown mode). This
// is the most destructive coercive action and callers must throttle it
// heavily (spec.md §4.6).
func Shutdown(ctx context.Context) error {
	_, err := run(ctx, `tell application "System Events" to shut down`)
	return err
}
