package hosts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewrite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost\n"), 0o644))

	e := NewAt(path)
	require.NoError(t, e.Rewrite([]string{"reddit.com", "youtube.com"}))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, e.Rewrite([]string{"reddit.com", "youtube.com"}))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, string(first), string(second), "rewriting with the same domains must be idempotent")
}

func TestRewrite_PreservesExternalContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	original := "127.0.0.1 localhost\n255.255.255.255 broadcasthost\n::1 localhost\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	e := NewAt(path)
	require.NoError(t, e.Rewrite([]string{"reddit.com"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "127.0.0.1 localhost")
	require.Contains(t, string(content), "255.255.255.255 broadcasthost")
	require.Contains(t, string(content), "::1 localhost")
}

func TestRewrite_EmptyDomainsLeavesNoBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	original := "127.0.0.1 localhost\n255.255.255.255 broadcasthost\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	e := NewAt(path)
	require.NoError(t, e.Rewrite([]string{"reddit.com", "youtube.com"}))
	require.NoError(t, e.Rewrite(nil))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strings.TrimRight(original, "\n"), strings.TrimRight(string(content), "\n"),
		"update(D,true) then update({},false) must restore the original content (testable property 2)")
	require.NotContains(t, string(content), "FocusDragon Block Start",
		"no sentinel block may remain once the domain set is empty")
}

func TestRewrite_ReplacesPriorSentinelBlockOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	e := NewAt(path)
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost\n"), 0o644))

	require.NoError(t, e.Rewrite([]string{"reddit.com"}))
	require.NoError(t, e.Rewrite([]string{"youtube.com"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(content), "reddit.com")
	require.Contains(t, string(content), "youtube.com")
	require.Equal(t, 1, strings.Count(string(content), "#### FocusDragon Block Start ####"),
		"must never produce more than one sentinel block")
}

func TestTick_RepairsTamperedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	e := NewAt(path)
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	require.NoError(t, e.Rewrite([]string{"reddit.com"}))

	// Simulate tampering: someone deletes the block.
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost\n"), 0o644))
	e.lastSelfCheck = e.lastSelfCheck.Add(-SelfCheckInterval * 2)

	require.NoError(t, e.Tick([]string{"reddit.com"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "0.0.0.0 reddit.com")
}

func TestCurrentBlockedDomains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	e := NewAt(path)
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	require.NoError(t, e.Rewrite([]string{"reddit.com", "youtube.com"}))

	domains, err := CurrentBlockedDomains(path)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"reddit.com", "youtube.com"}, domains)
}
