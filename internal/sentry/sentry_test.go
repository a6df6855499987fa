package sentry

import (
	"testing"
	"time"

	"github.com/focusdragon/enforcer/internal/config"
	"github.com/focusdragon/enforcer/internal/policy"
)

const testExePath = "/Applications/Reddit.app/Contents/MacOS/Reddit"

func TestClassify_NotBlockingNeverKills(t *testing.T) {
	eff := policy.Effective{IsBlocking: false, BlockedApps: []config.BlockedApp{{BundleIdentifier: "com.reddit.app"}}}
	_, kill := classify("com.reddit.app", testExePath, eff, time.Now())
	if kill {
		t.Error("no process should be killed when policy is not blocking")
	}
}

func TestClassify_BlockedAppKilled(t *testing.T) {
	eff := policy.Effective{IsBlocking: true, BlockedApps: []config.BlockedApp{{BundleIdentifier: "com.reddit.app"}}}
	reason, kill := classify("com.reddit.app", testExePath, eff, time.Now())
	if !kill || reason == "" {
		t.Error("blocked app should be killed with a reason")
	}
}

func TestClassify_AppExceptionSpares(t *testing.T) {
	eff := policy.Effective{
		IsBlocking:  true,
		BlockedApps: []config.BlockedApp{{BundleIdentifier: "com.reddit.app"}},
		AppExceptions: []config.AppException{
			{BundleIdentifier: "com.reddit.app", AlwaysAllow: true},
		},
	}
	_, kill := classify("com.reddit.app", testExePath, eff, time.Now())
	if kill {
		t.Error("app with an always-allow exception must not be killed")
	}
}

func TestClassify_UnrelatedAppNeverKilled(t *testing.T) {
	eff := policy.Effective{IsBlocking: true, BlockedApps: []config.BlockedApp{{BundleIdentifier: "com.reddit.app"}}}
	_, kill := classify("com.apple.mail", testExePath, eff, time.Now())
	if kill {
		t.Error("unlisted app must not be killed by block-app rules")
	}
}

func TestClassify_WhitelistOnlyKillsUnlistedUserApp(t *testing.T) {
	eff := policy.Effective{IsBlocking: true, WhitelistOnlyApps: []string{"com.apple.mail"}}
	reason, kill := classify("com.reddit.app", testExePath, eff, time.Now())
	if !kill || reason == "" {
		t.Error("app outside the whitelist under /Applications/ must be killed")
	}
}

func TestClassify_WhitelistOnlySparesListedApp(t *testing.T) {
	eff := policy.Effective{IsBlocking: true, WhitelistOnlyApps: []string{"com.reddit.app"}}
	_, kill := classify("com.reddit.app", testExePath, eff, time.Now())
	if kill {
		t.Error("app on the whitelist must not be killed")
	}
}

func TestClassify_WhitelistOnlyIgnoresNonUserPaths(t *testing.T) {
	eff := policy.Effective{IsBlocking: true, WhitelistOnlyApps: []string{"com.apple.mail"}}
	_, kill := classify("com.some.daemon", "/usr/libexec/somedaemon", eff, time.Now())
	if kill {
		t.Error("process outside /Applications/ and /Users/ must not be swept by whitelist-only mode")
	}
}

func TestClassify_WhitelistOnlyOverridesBlockedApps(t *testing.T) {
	// Whitelist-only mode takes priority over the plain block list per
	// spec.md §4.3 step 4 — a whitelisted app is spared even though it is
	// also on the block list.
	eff := policy.Effective{
		IsBlocking:        true,
		BlockedApps:       []config.BlockedApp{{BundleIdentifier: "com.reddit.app"}},
		WhitelistOnlyApps: []string{"com.reddit.app"},
	}
	_, kill := classify("com.reddit.app", testExePath, eff, time.Now())
	if kill {
		t.Error("whitelisted app must not be killed even if also present in the plain block list")
	}
}

func TestIsWhitelistOnlyViolation(t *testing.T) {
	whitelist := []string{"com.apple.mail", "com.apple.calendar"}
	if IsWhitelistOnlyViolation("com.apple.mail", whitelist) {
		t.Error("whitelisted app must not be flagged as a violation")
	}
	if !IsWhitelistOnlyViolation("com.reddit.app", whitelist) {
		t.Error("non-whitelisted app must be flagged as a violation")
	}
}
