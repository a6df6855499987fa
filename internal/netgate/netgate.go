// Package netgate implements the Internet Gate (spec.md §4.5): when
// internet-block mode is enabled, it loads a PF anchor that drops all
// outbound traffic except to a resolved-IP whitelist, the way the
// Fokir-Ianus-Split-Tunnel-VPN platform driver manages its own PF
// anchor for split tunneling.
package netgate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/focusdragon/enforcer/internal/config"
	"github.com/focusdragon/enforcer/internal/utils"
)

// Gate manages the lifecycle of the focusdragon PF anchor: enabling PF
// with pfctl -E, loading/flushing anchor rules, and restoring pf.conf
// from its backup when the gate is disabled.
type Gate struct {
	mu          sync.Mutex
	enabled     bool
	anchorLoaded bool
	lastSignature string
}

// New returns a Gate in its initial, disabled state.
func New() *Gate {
	return &Gate{}
}

// Apply brings the gate to the desired state for this tick. When
// enabled is false, it flushes and disables PF if this gate previously
// enabled it. When enabled is true, it computes the resolved-IP
// whitelist and reloads the anchor only if the whitelist's signature
// changed since the last reload (testable property 10: "PF reload
// exactly once for an unchanged whitelist").
func (g *Gate) Apply(ctx context.Context, ic *config.InternetGateConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ic == nil || !ic.IsEnabled {
		if g.enabled {
			if err := g.disableLocked(); err != nil {
				return err
			}
		}
		return nil
	}

	whitelist := resolveWhitelist(ic.WhitelistDomains)
	sig := signature(ic.WhitelistDomains)

	if !g.enabled {
		if err := g.enableLocked(); err != nil {
			return err
		}
	}

	if sig == g.lastSignature && g.anchorLoaded {
		return nil
	}

	if err := loadAnchorRules(whitelist); err != nil {
		return err
	}
	g.anchorLoaded = true
	g.lastSignature = sig
	slog.Info("internet gate anchor reloaded", "whitelist_domains", len(ic.WhitelistDomains), "resolved_ips", len(whitelist))
	return nil
}

func (g *Gate) enableLocked() error {
	if err := insertAnchorReference(); err != nil {
		return fmt.Errorf("inserting pf anchor reference: %w", err)
	}
	if err := exec.Command("pfctl", "-E").Run(); err != nil {
		return fmt.Errorf("enabling pf: %w", err)
	}
	g.enabled = true
	return nil
}

func (g *Gate) disableLocked() error {
	if err := exec.Command("pfctl", "-a", config.PFAnchorName, "-F", "all").Run(); err != nil {
		slog.Warn("flushing pf anchor failed", "error", err)
	}
	if err := exec.Command("pfctl", "-d").Run(); err != nil {
		slog.Warn("disabling pf failed", "error", err)
	}
	if err := removeAnchorReference(); err != nil {
		slog.Warn("removing pf anchor reference failed", "error", err)
	}
	g.enabled = false
	g.anchorLoaded = false
	g.lastSignature = ""
	return nil
}

// loadAnchorRules writes a "block all, pass only to whitelist" ruleset
// into the anchor via pfctl's stdin-fed -f -, mirroring the VPN driver's
// pfctlLoadAnchor pattern.
func loadAnchorRules(whitelist []string) error {
	rules := buildRules(whitelist)

	cmd := exec.Command("pfctl", "-a", config.PFAnchorName, "-f", "-")
	cmd.Stdin = bytes.NewBufferString(rules)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("loading pf anchor rules: %w: %s", err, stderr.String())
	}
	return nil
}

// privateNetworkCIDRs are always passed through regardless of the
// whitelist, per spec.md §4.5 step 3 ("pass to loopback and private
// network CIDRs"): loopback plus the three RFC 1918 ranges, so LAN
// traffic (printers, local servers, router admin) survives the gate.
var privateNetworkCIDRs = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

// buildRules renders the "block everything, pass only to whitelist" PF
// ruleset text. Kept separate from loadAnchorRules so it is unit
// testable without invoking pfctl.
func buildRules(whitelist []string) string {
	var rules strings.Builder
	rules.WriteString("block drop out all\n")
	for _, ip := range whitelist {
		fmt.Fprintf(&rules, "pass out quick to %s\n", ip)
	}
	for _, cidr := range privateNetworkCIDRs {
		fmt.Fprintf(&rules, "pass out quick to %s\n", cidr)
	}
	return rules.String()
}

// insertAnchorReference ensures /etc/pf.conf references our anchor,
// backing up the original file the first time so it can be restored.
func insertAnchorReference() error {
	content, err := os.ReadFile(config.PFConfPath)
	if err != nil {
		return err
	}
	if strings.Contains(string(content), config.PFMarkerStart) {
		return nil
	}
	if _, err := os.Stat(config.PFConfBackupPath); os.IsNotExist(err) {
		if err := os.WriteFile(config.PFConfBackupPath, content, 0o644); err != nil {
			return err
		}
	}

	addition := fmt.Sprintf("\n%s\nanchor %q\n%s\n", config.PFMarkerStart, config.PFAnchorName, config.PFMarkerEnd)
	return os.WriteFile(config.PFConfPath, append(content, []byte(addition)...), 0o644)
}

// removeAnchorReference restores pf.conf from the backup taken before
// the anchor reference was inserted.
func removeAnchorReference() error {
	backup, err := os.ReadFile(config.PFConfBackupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(config.PFConfPath, backup, 0o644)
}

// resolveWhitelist resolves every domain to its current A/AAAA records.
// A domain that fails to resolve simply contributes no addresses
// (fail-closed: spec.md §4.5).
func resolveWhitelist(domains []string) []string {
	var ips []string
	for _, d := range domains {
		ips = append(ips, utils.ResolveIPs(d, "A")...)
		ips = append(ips, utils.ResolveIPs(d, "AAAA")...)
	}
	return ips
}

// signature hashes a sorted, lowercased copy of the domain list so an
// unchanged whitelist produces the same signature across ticks even if
// the config file lists domains in a different order.
func signature(domains []string) string {
	sorted := make([]string, len(domains))
	for i, d := range domains {
		sorted[i] = strings.ToLower(strings.TrimSpace(d))
	}
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}
