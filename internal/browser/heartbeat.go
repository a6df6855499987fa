package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/focusdragon/enforcer/internal/config"
)

// HeartbeatMaxAge is how stale a heartbeat file's modification time may
// be before its profile is treated as non-compliant (spec.md §4.4 step
// 2: "fresh if its file modification time is within 10s of now").
const HeartbeatMaxAge = 10 * time.Second

// Heartbeat is the JSON document a browser helper host writes per
// profile (spec.md §6): `<family>_<profile>.heartbeat` under the shared
// heartbeat directory.
type Heartbeat struct {
	ProfileID        string `json:"profileId"`
	WindowCount      int    `json:"windowCount"`
	IncognitoAllowed bool   `json:"incognitoAllowed"`
}

// FamilyHeartbeats is the aggregate result of reading every heartbeat
// file for one browser family.
type FamilyHeartbeats struct {
	Heartbeats []Heartbeat
	AllFresh   bool // every file's mtime is within HeartbeatMaxAge of now
}

// Found reports whether at least one heartbeat file exists for the
// family (spec.md §4.4 step 2: "at least one heartbeat file exists").
func (f FamilyHeartbeats) Found() bool {
	return len(f.Heartbeats) > 0
}

// AllIncognitoAllowed reports whether every heartbeat reports
// incognitoAllowed=true.
func (f FamilyHeartbeats) AllIncognitoAllowed() bool {
	for _, hb := range f.Heartbeats {
		if !hb.IncognitoAllowed {
			return false
		}
	}
	return true
}

// TotalWindowCount sums windowCount across every profile's heartbeat.
func (f FamilyHeartbeats) TotalWindowCount() int {
	total := 0
	for _, hb := range f.Heartbeats {
		total += hb.WindowCount
	}
	return total
}

// ReadFamilyHeartbeats globs every `<family>_*.heartbeat` file under the
// shared heartbeat directory and parses each as a Heartbeat, freshness
// determined from the file's own modification time rather than a field
// inside the JSON (so a stalled helper that stops writing is caught even
// if it never flushes a fresh timestamp into the file).
func ReadFamilyHeartbeats(family string, now time.Time) (FamilyHeartbeats, error) {
	pattern := filepath.Join(config.HeartbeatDir, family+"_*.heartbeat")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return FamilyHeartbeats{}, fmt.Errorf("globbing heartbeats for %s: %w", family, err)
	}

	result := FamilyHeartbeats{AllFresh: true}
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > HeartbeatMaxAge {
			result.AllFresh = false
		}

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var hb Heartbeat
		if err := json.Unmarshal(data, &hb); err != nil {
			result.AllFresh = false
			continue
		}
		result.Heartbeats = append(result.Heartbeats, hb)
	}
	return result, nil
}
