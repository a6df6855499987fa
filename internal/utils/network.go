package utils

import (
	"context"
	"net"
	"os/exec"
	"strings"
	"time"
)

// IsIPAddress checks if a string is a valid IPv4 or IPv6 address.
func IsIPAddress(s string) bool {
	return net.ParseIP(s) != nil
}

// ResolveIPs resolves a domain name to IP addresses using the system resolver.
// recordType should be "A" for IPv4 or "AAAA" for IPv6. Returns an empty,
// non-nil slice if resolution fails — callers treat that as fail-closed:
// a domain that cannot be resolved simply contributes no addresses to a
// whitelist (spec.md §4.5 failure semantics).
func ResolveIPs(domain string, recordType string) []string {
	ips := make([]string, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resolver net.Resolver
	addrs, err := resolver.LookupIPAddr(ctx, domain)
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		ip := addr.IP
		switch recordType {
		case "A":
			if ip.To4() != nil {
				ips = append(ips, ip.String())
			}
		case "AAAA":
			if ip.To4() == nil {
				ips = append(ips, ip.String())
			}
		}
	}

	return ips
}

// IsLaunchdServiceLoaded checks whether a launchd label is currently loaded.
func IsLaunchdServiceLoaded(label string) bool {
	return exec.Command("launchctl", "list", label).Run() == nil
}

// FlushDNSCache flushes the macOS DNS resolver cache and tells mDNSResponder
// to pick up the new hosts file. Both steps are best-effort (spec.md §4.2
// step 7: failures are logged but do not fail the hosts write).
func FlushDNSCache() error {
	flushErr := exec.Command("dscacheutil", "-flushcache").Run()
	hupErr := exec.Command("killall", "-HUP", "mDNSResponder").Run()
	if flushErr != nil {
		return flushErr
	}
	return hupErr
}

// CurrentConsoleUser returns the username of the console session owner,
// read from the owner of /dev/console; the system dynamic store is not
// queried. Returns "" with no error when nobody is logged in or the console
// user is the login window (/dev/console owned by root), which callers
// treat as "skip".
func CurrentConsoleUser() (string, error) {
	out, err := exec.Command("stat", "-f", "%Su", "/dev/console").Output()
	if err != nil {
		return "", err
	}
	user := strings.TrimSpace(string(out))
	if user == "" || user == "root" {
		return "", nil
	}
	return user, nil
}
