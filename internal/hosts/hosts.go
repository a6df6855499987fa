// Package hosts implements the Hosts Engine (spec.md §4.2): it rewrites
// /etc/hosts with a single sentinel-delimited block and repairs tampering
// on a short self-check cadence, the way the teacher's enforcement
// package rewrote the hosts file under its own marker.
package hosts

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/focusdragon/enforcer/internal/config"
	"github.com/focusdragon/enforcer/internal/utils"
)

// SelfCheckInterval is how often the Hosts Engine re-reads the live file
// to detect tampering outside the normal tick cadence (spec.md §4.2).
const SelfCheckInterval = 5 * time.Second

// Engine owns the last-known-good checksum so repeated ticks with an
// unchanged domain set skip the rewrite, mirroring the teacher's
// EnforcementState.expectedHostsHash pattern.
type Engine struct {
	mu             sync.Mutex
	path           string
	expectedHash   string
	lastDomains    []string
	lastSelfCheck  time.Time
}

// New returns a Hosts Engine targeting the real /etc/hosts. Tests
// construct one with a temp-file path directly.
func New() *Engine {
	return &Engine{path: config.HostsPath}
}

// NewAt returns a Hosts Engine targeting an arbitrary path, for tests.
func NewAt(path string) *Engine {
	return &Engine{path: path}
}

func buildBlock(domains []string) string {
	var b strings.Builder
	b.WriteString(config.HostsMarkerStart)
	b.WriteByte('\n')
	for _, d := range domains {
		fmt.Fprintf(&b, "0.0.0.0 %s\n", d)
		fmt.Fprintf(&b, "0.0.0.0 www.%s\n", d)
	}
	b.WriteString(config.HostsMarkerEnd)
	b.WriteByte('\n')
	return b.String()
}

// splitSentinel separates any existing sentinel block out of content,
// returning the content with the block's markers and everything between
// them removed, plus whatever was between them (possibly tampered).
func splitSentinel(content string) (outside string, inside string, hadBlock bool) {
	startIdx := strings.Index(content, config.HostsMarkerStart)
	if startIdx == -1 {
		return content, "", false
	}
	endMarkerIdx := strings.Index(content, config.HostsMarkerEnd)
	if endMarkerIdx == -1 || endMarkerIdx < startIdx {
		// Malformed sentinel: drop everything from the start marker onward
		// rather than guess — the next Rewrite will lay a clean block down.
		return content[:startIdx], "", true
	}
	endIdx := endMarkerIdx + len(config.HostsMarkerEnd)
	before := content[:startIdx]
	after := content[endIdx:]
	if after == "\n" {
		after = ""
	} else if strings.HasPrefix(after, "\n") {
		after = after[1:]
	}
	inside = content[startIdx:endIdx]
	return before + after, inside, true
}

// Rewrite replaces the sentinel block in the hosts file with one built
// from domains, preserving every other line untouched (spec.md testable
// property 2: "hosts preservation of external content"). It is
// idempotent: calling it twice with the same domains produces byte-
// identical output (testable property 1).
func (e *Engine) Rewrite(domains []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rewriteLocked(domains)
}

func (e *Engine) rewriteLocked(domains []string) error {
	existing, err := os.ReadFile(e.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading hosts file %s: %w", e.path, err)
	}

	outside, _, _ := splitSentinel(string(existing))
	outside = strings.TrimRight(outside, "\n")

	var b strings.Builder
	if outside != "" {
		b.WriteString(outside)
		b.WriteByte('\n')
		if len(domains) > 0 {
			b.WriteByte('\n')
		}
	}
	// No sentinel block at all when there is nothing to block — spec.md
	// §4.2 requires "no such block otherwise", not an empty pair of markers.
	if len(domains) > 0 {
		b.WriteString(buildBlock(domains))
	}

	if err := renameio.WriteFile(e.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing hosts file %s: %w", e.path, err)
	}

	e.expectedHash = checksum(b.String())
	e.lastDomains = append([]string(nil), domains...)
	e.lastSelfCheck = time.Now()

	if err := utils.FlushDNSCache(); err != nil {
		slog.Warn("dns cache flush failed after hosts rewrite", "error", err)
	}
	return nil
}

// Tick applies the current domain set, skipping the write if nothing
// changed and the self-check interval has not elapsed, and repairing the
// file if the self-check finds it has been tampered with.
func (e *Engine) Tick(domains []string) error {
	e.mu.Lock()
	sameDomains := sameSet(e.lastDomains, domains)
	dueForCheck := time.Since(e.lastSelfCheck) >= SelfCheckInterval
	e.mu.Unlock()

	if !sameDomains {
		return e.Rewrite(domains)
	}
	if !dueForCheck {
		return nil
	}

	tampered, err := e.isTampered()
	if err != nil {
		slog.Warn("hosts self-check failed", "error", err)
		return nil
	}
	if tampered {
		slog.Warn("hosts file tamper detected, repairing")
		return e.Rewrite(domains)
	}

	e.mu.Lock()
	e.lastSelfCheck = time.Now()
	e.mu.Unlock()
	return nil
}

func (e *Engine) isTampered() (bool, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return true, err
	}
	e.mu.Lock()
	expected := e.expectedHash
	e.mu.Unlock()
	return checksum(string(data)) != expected, nil
}

func checksum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, d := range a {
		seen[d] = true
	}
	for _, d := range b {
		if !seen[d] {
			return false
		}
	}
	return true
}

// CurrentBlockedDomains reads the live hosts file and extracts the
// domains currently inside the sentinel block, for diagnostics.
func CurrentBlockedDomains(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var domains []string
	inBlock := false
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.TrimSpace(line) == config.HostsMarkerStart:
			inBlock = true
		case strings.TrimSpace(line) == config.HostsMarkerEnd:
			inBlock = false
		case inBlock:
			fields := strings.Fields(line)
			if len(fields) == 2 && fields[0] == "0.0.0.0" {
				d := strings.TrimPrefix(fields[1], "www.")
				if !seen[d] {
					seen[d] = true
					domains = append(domains, d)
				}
			}
		}
	}
	return domains, scanner.Err()
}
