package policy

import (
	"testing"
	"time"

	"github.com/focusdragon/enforcer/internal/config"
)

func TestCompose_LockVetoesUnblock(t *testing.T) {
	cfg := &config.Config{IsBlocking: false, BlockedDomains: []string{"reddit.com"}}
	future := time.Now().Add(time.Hour)
	lock := &config.LockState{LockType: config.LockTimer, IsLocked: true, ExpiresAt: &future}

	eff := Compose(cfg, lock, time.Now())
	if !eff.IsBlocking {
		t.Fatal("active lock must force IsBlocking=true even when config says false")
	}
	if len(eff.HostsBlockedSet) != 1 {
		t.Fatalf("expected 1 domain in hosts blocked set, got %d", len(eff.HostsBlockedSet))
	}
}

func TestCompose_ExpiredLockDoesNotVeto(t *testing.T) {
	cfg := &config.Config{IsBlocking: false}
	past := time.Now().Add(-time.Hour)
	lock := &config.LockState{LockType: config.LockTimer, IsLocked: true, ExpiresAt: &past}

	eff := Compose(cfg, lock, time.Now())
	if eff.IsBlocking {
		t.Fatal("expired timer lock must not force blocking")
	}
}

func TestCompose_URLExceptionExcludesFromHosts(t *testing.T) {
	cfg := &config.Config{
		IsBlocking:     true,
		BlockedDomains: []string{"youtube.com", "reddit.com"},
		URLExceptions:  []config.URLException{{Domain: "youtube.com", AllowedPaths: []string{"/watch"}}},
	}
	eff := Compose(cfg, nil, time.Now())

	if len(eff.BlockedDomains) != 2 {
		t.Fatalf("expected both domains in BlockedDomains, got %d", len(eff.BlockedDomains))
	}
	if len(eff.HostsBlockedSet) != 1 || eff.HostsBlockedSet[0] != "reddit.com" {
		t.Fatalf("expected only reddit.com in hosts blocked set, got %v", eff.HostsBlockedSet)
	}
}

func TestCompose_InvalidDomainsDropped(t *testing.T) {
	cfg := &config.Config{
		IsBlocking:     true,
		BlockedDomains: []string{"not a domain", "nodot", "VALID.COM", "valid.com"},
	}
	eff := Compose(cfg, nil, time.Now())

	if len(eff.BlockedDomains) != 1 || eff.BlockedDomains[0] != "valid.com" {
		t.Fatalf("expected only valid.com (deduped, lowercased), got %v", eff.BlockedDomains)
	}
}

func TestCompose_NotBlockingClearsHostsSet(t *testing.T) {
	cfg := &config.Config{IsBlocking: false, BlockedDomains: []string{"reddit.com"}}
	eff := Compose(cfg, nil, time.Now())
	if eff.HostsBlockedSet != nil {
		t.Errorf("expected nil hosts blocked set when not blocking, got %v", eff.HostsBlockedSet)
	}
}

func TestCompose_WhitelistOnlyAppsPassedThrough(t *testing.T) {
	cfg := &config.Config{IsBlocking: true, WhitelistOnlyApps: []string{"com.apple.mail"}}
	eff := Compose(cfg, nil, time.Now())
	if len(eff.WhitelistOnlyApps) != 1 || eff.WhitelistOnlyApps[0] != "com.apple.mail" {
		t.Fatalf("expected whitelist-only apps to pass through, got %v", eff.WhitelistOnlyApps)
	}
}

func TestCompose_NotBlockingClearsWhitelistOnlyApps(t *testing.T) {
	cfg := &config.Config{IsBlocking: false, WhitelistOnlyApps: []string{"com.apple.mail"}}
	eff := Compose(cfg, nil, time.Now())
	if eff.WhitelistOnlyApps != nil {
		t.Errorf("expected nil whitelist-only apps when not blocking, got %v", eff.WhitelistOnlyApps)
	}
}

func TestIsValidDomain(t *testing.T) {
	tests := []struct {
		domain string
		valid  bool
	}{
		{"reddit.com", true},
		{"sub.reddit.com", true},
		{"no-dot", false},
		{"UPPER.COM", false}, // case folded before validation in Compose, but pattern itself is case sensitive
		{"", false},
		{"has space.com", false},
	}
	for _, tt := range tests {
		got := IsValidDomain(tt.domain)
		want := tt.valid
		if got != want {
			t.Errorf("IsValidDomain(%q) = %v, want %v", tt.domain, got, want)
		}
	}
}

func TestAppExceptionActive_AlwaysAllow(t *testing.T) {
	ex := config.AppException{AlwaysAllow: true}
	if !AppExceptionActive(ex, time.Now()) {
		t.Error("AlwaysAllow exception should always be active")
	}
}

func TestAppExceptionActive_Schedule(t *testing.T) {
	// Monday 2024-01-01 is ISO weekday 1.
	monday := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ex := config.AppException{
		Schedules: []config.ExceptionSchedule{
			{Days: []int{1}, StartHour: 9, StartMin: 0, EndHour: 17, EndMin: 0},
		},
	}
	if !AppExceptionActive(ex, monday) {
		t.Error("expected exception active within scheduled window on Monday")
	}

	tuesday := monday.AddDate(0, 0, 1)
	if AppExceptionActive(ex, tuesday) {
		t.Error("expected exception inactive on a day not in the schedule")
	}
}

func TestProtectedBundleIDs_CoreSystemProcesses(t *testing.T) {
	for _, id := range []string{"com.apple.loginwindow", "com.apple.finder", config.FrontendBundleID} {
		if !ProtectedBundleIDs[id] {
			t.Errorf("expected %s to be protected", id)
		}
	}
}
