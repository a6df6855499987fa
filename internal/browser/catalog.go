// Package browser implements the Browser Enforcer (spec.md §4.4): it
// verifies that any running, supported browser has a live extension
// heartbeat, and force-quits anything it cannot trust — unsupported
// browsers, and supported browsers with a stale or missing heartbeat.
package browser

import "path/filepath"

// ManifestFileName is the native-messaging-host manifest FocusDragon's
// extension expects to find installed under each non-Safari catalog
// browser's NativeMessagingHosts directory (spec.md §4.4 step 2).
const ManifestFileName = "com.focusdragon.helper.json"

// Entry describes one browser the extension ships support for.
type Entry struct {
	BundleID     string
	ProcessName  string
	DisplayName  string
	HeartbeatKey string // filename family stem under the heartbeat directory
	// NativeMessagingHostDir is the browser's native-messaging-host
	// manifest directory, relative to the console user's home directory.
	// Empty for Safari, which is exempt from the manifest check because
	// its extension ships bundled with the front-end app (spec.md §4.4
	// step 2).
	NativeMessagingHostDir string
}

// Catalog lists every browser the focus-extension supports. An entry
// missing from this list is treated by the heuristic scanner as an
// unsupported browser regardless of how trustworthy it otherwise looks.
var Catalog = []Entry{
	{
		BundleID: "com.google.chrome", ProcessName: "Google Chrome", DisplayName: "Chrome", HeartbeatKey: "chrome",
		NativeMessagingHostDir: "Library/Application Support/Google/Chrome/NativeMessagingHosts",
	},
	{
		BundleID: "com.brave.browser", ProcessName: "Brave Browser", DisplayName: "Brave", HeartbeatKey: "brave",
		NativeMessagingHostDir: "Library/Application Support/BraveSoftware/Brave-Browser/NativeMessagingHosts",
	},
	{
		BundleID: "com.microsoft.edgemac", ProcessName: "Microsoft Edge", DisplayName: "Edge", HeartbeatKey: "edge",
		NativeMessagingHostDir: "Library/Application Support/Microsoft Edge/NativeMessagingHosts",
	},
	{
		BundleID: "org.mozilla.firefox", ProcessName: "Firefox", DisplayName: "Firefox", HeartbeatKey: "firefox",
		NativeMessagingHostDir: "Library/Application Support/Mozilla/NativeMessagingHosts",
	},
	{
		BundleID: "company.thebrowser.Browser", ProcessName: "Arc", DisplayName: "Arc", HeartbeatKey: "arc",
		NativeMessagingHostDir: "Library/Application Support/Arc/User Data/NativeMessagingHosts",
	},
	{BundleID: "com.apple.Safari", ProcessName: "Safari", DisplayName: "Safari", HeartbeatKey: "safari"},
}

// Lookup finds a catalog entry by bundle id.
func Lookup(bundleID string) (Entry, bool) {
	for _, e := range Catalog {
		if e.BundleID == bundleID {
			return e, true
		}
	}
	return Entry{}, false
}

// IsSupported reports whether bundleID belongs to a browser the
// extension ships for.
func IsSupported(bundleID string) bool {
	_, ok := Lookup(bundleID)
	return ok
}

// ManifestPath returns the expected native-messaging-host manifest path
// for entry under homeDir, or "" for a family exempt from the check
// (Safari).
func ManifestPath(homeDir string, entry Entry) string {
	if entry.NativeMessagingHostDir == "" {
		return ""
	}
	return filepath.Join(homeDir, entry.NativeMessagingHostDir, ManifestFileName)
}
