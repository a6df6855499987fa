// Package policy composes the Orchestrator's pure core: the Effective
// Policy that every other subsystem reads from, instead of querying
// config and lock state separately. Composition is a pure function of
// its inputs, mirroring the teacher's GetDomainsToBlock, which reduces a
// config and a clock reading down to a plain data decision before any
// subsystem acts on it.
package policy

import (
	"regexp"
	"strings"
	"time"

	"github.com/focusdragon/enforcer/internal/config"
)

// domainPattern enforces spec.md's hosts-file domain contract: lowercase
// letters, digits, dots and hyphens, with at least one dot.
var domainPattern = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z0-9-]+$`)

// ProtectedBundleIDs can never be terminated by Process Sentry or Browser
// Enforcer regardless of block-list/whitelist configuration (spec.md §3
// invariant: "protected bundle IDs are never terminated").
var ProtectedBundleIDs = map[string]bool{
	"com.apple.loginwindow":       true,
	"com.apple.WindowServer":      true,
	"com.apple.systemuiserver":    true,
	"com.apple.dock":              true,
	"com.apple.finder":            true,
	"com.apple.controlcenter":     true,
	config.FrontendBundleID:       true,
	"com.focusdragon.helper":      true,
}

// Effective is the computed policy every subsystem reads from on a tick.
// It is immutable once returned by Compose — subsystems never mutate it.
type Effective struct {
	IsBlocking              bool
	BlockedDomains          []string // validated, lowercased, deduped
	HostsBlockedSet         []string // BlockedDomains minus any with a URLException
	BlockedApps             []config.BlockedApp
	AppExceptions           []config.AppException
	WhitelistOnlyApps       []string // if non-empty, only these bundle ids (plus protected ones) may run
	RequireBrowserExtension bool
	InternetGate            *config.InternetGateConfig
	Frozen                  *config.FrozenState
	LockActive              bool
	LockKind                config.LockKind
}

// IsValidDomain reports whether s meets the hosts-file domain contract.
func IsValidDomain(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, ".") {
		return false
	}
	return domainPattern.MatchString(s)
}

// Compose builds the Effective Policy from raw config and lock state.
// Invariant 1: an active lock forces IsBlocking=true regardless of what
// the config says — an unblock request cannot simply rewrite config.json
// to defeat a lock. Invariant 2: hosts-file blocking excludes any domain
// carrying a URL exception, since the browser extension is responsible
// for those instead (spec.md §3).
func Compose(cfg *config.Config, lock *config.LockState, now time.Time) Effective {
	lockActive := lock != nil && lock.Active(now)

	eff := Effective{
		IsBlocking:              cfg.IsBlocking || lockActive,
		BlockedApps:             cfg.BlockedApps,
		AppExceptions:           cfg.AppExceptions,
		WhitelistOnlyApps:       cfg.WhitelistOnlyApps,
		RequireBrowserExtension: cfg.RequireBrowserExtension,
		InternetGate:            cfg.InternetBlockConfig,
		Frozen:                  cfg.FrozenState,
		LockActive:              lockActive,
	}
	if lock != nil {
		eff.LockKind = lock.LockType
	}

	exceptedDomains := make(map[string]bool, len(cfg.URLExceptions))
	for _, ex := range cfg.URLExceptions {
		exceptedDomains[strings.ToLower(strings.TrimSpace(ex.Domain))] = true
	}

	seen := make(map[string]bool, len(cfg.BlockedDomains))
	for _, d := range cfg.BlockedDomains {
		norm := strings.ToLower(strings.TrimSpace(d))
		if !IsValidDomain(norm) || seen[norm] {
			continue
		}
		seen[norm] = true
		eff.BlockedDomains = append(eff.BlockedDomains, norm)
		if !exceptedDomains[norm] {
			eff.HostsBlockedSet = append(eff.HostsBlockedSet, norm)
		}
	}

	if !eff.IsBlocking {
		eff.HostsBlockedSet = nil
		eff.BlockedApps = nil
		eff.WhitelistOnlyApps = nil
		eff.InternetGate = nil
	}

	return eff
}

// AppExceptionActive reports whether a blocked app's exception currently
// applies, following the schedule-window matching idiom the teacher uses
// for domain time windows.
func AppExceptionActive(ex config.AppException, now time.Time) bool {
	if ex.AlwaysAllow {
		return true
	}
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO: Sunday is 7, not 0
	}
	minutesNow := now.Hour()*60 + now.Minute()

	for _, sched := range ex.Schedules {
		dayMatches := false
		for _, d := range sched.Days {
			if d == weekday {
				dayMatches = true
				break
			}
		}
		if !dayMatches {
			continue
		}
		start := sched.StartHour*60 + sched.StartMin
		end := sched.EndHour*60 + sched.EndMin
		if start <= end {
			if minutesNow >= start && minutesNow <= end {
				return true
			}
		} else if minutesNow >= start || minutesNow <= end {
			return true
		}
	}
	return false
}
