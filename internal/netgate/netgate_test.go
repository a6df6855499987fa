package netgate

import (
	"strings"
	"testing"
)

func TestSignature_OrderIndependent(t *testing.T) {
	a := signature([]string{"khanacademy.org", "docs.google.com"})
	b := signature([]string{"docs.google.com", "khanacademy.org"})
	if a != b {
		t.Error("signature must be independent of input ordering")
	}
}

func TestSignature_CaseIndependent(t *testing.T) {
	a := signature([]string{"Docs.Google.com"})
	b := signature([]string{"docs.google.com"})
	if a != b {
		t.Error("signature must be case-insensitive")
	}
}

func TestSignature_ChangesWithContent(t *testing.T) {
	a := signature([]string{"khanacademy.org"})
	b := signature([]string{"khanacademy.org", "docs.google.com"})
	if a == b {
		t.Error("signature must change when whitelist content changes")
	}
}

func TestBuildRules_BlocksAllExceptWhitelist(t *testing.T) {
	rules := buildRules([]string{"1.2.3.4", "5.6.7.8"})
	if !strings.HasPrefix(rules, "block drop out all\n") {
		t.Error("ruleset must start by blocking everything")
	}
	if !strings.Contains(rules, "pass out quick to 1.2.3.4") {
		t.Error("ruleset must pass traffic to whitelisted IP")
	}
	if !strings.Contains(rules, "pass out quick to 127.0.0.0/8") {
		t.Error("ruleset must always permit loopback")
	}
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		if !strings.Contains(rules, "pass out quick to "+cidr) {
			t.Errorf("ruleset must always permit private network range %s", cidr)
		}
	}
}

func TestApply_DisabledConfigIsNoop(t *testing.T) {
	g := New()
	if err := g.Apply(nil, nil); err != nil {
		t.Fatalf("Apply with nil config should be a no-op, got error: %v", err)
	}
	if g.enabled {
		t.Error("gate must remain disabled when config is nil")
	}
}
