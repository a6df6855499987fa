package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"howett.net/plist"
)

// RescanInterval is how often the unsupported-browser sweep walks the
// application directories, rather than on every tick (spec.md §4.4 step
// 1: "not more than once every 10 minutes").
const RescanInterval = 10 * time.Minute

// scoreThreshold is the minimum accumulated score for a bundle to be
// classified as a browser by the heuristic (spec.md §4.4 step 1).
const scoreThreshold = 3

// appScanDirs are the standard application install locations swept for
// unrecognized browser bundles.
var appScanDirs = []string{"/Applications", "/Applications/Utilities"}

// browserKeywords flag a bundle's name as browser-like for the +1
// "keyword" signal.
var browserKeywords = []string{
	"browser", "chromium", "opera", "vivaldi", "waterfox", "librewolf", "sidekick", "orion", "tor browser",
}

// browserEngineFrameworks are bundled frameworks whose presence counts
// as the "bundles a browser engine" signal.
var browserEngineFrameworks = []string{
	"Chromium Embedded Framework.framework",
	"CEF.framework",
	"WebKit.framework",
}

// ownOrganizationPrefix excludes FocusDragon's own bundles from the
// heuristic (spec.md §4.4 step 1: "own-organization bundle ids are
// excluded").
const ownOrganizationPrefix = "com.focusdragon."

// UnsupportedMatch is a process the heuristic scanner flagged as an
// unsupported browser.
type UnsupportedMatch struct {
	PID      int32
	Name     string
	BundleID string
	Score    int
}

// heuristicCache remembers the result of the last directory sweep so
// DetectUnsupported's per-tick call doesn't re-walk /Applications every
// 2s; only a cold cache or an elapsed RescanInterval triggers a rescan.
type heuristicCache struct {
	mu          sync.Mutex
	scannedAt   time.Time
	unsupported map[string]bool // bundle id -> flagged as an unsupported browser
}

var cache = &heuristicCache{}

// DetectUnsupported lists running processes whose app bundle looks like
// a browser (by the directory-scan heuristic, refreshed at most every
// RescanInterval) but is not in Catalog.
func DetectUnsupported(ctx context.Context) ([]UnsupportedMatch, error) {
	unsupported := cache.scan()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var matches []UnsupportedMatch
	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			continue
		}
		appPath := appBundlePath(exe)
		if appPath == "" {
			continue
		}
		bundleID := bundleIDFromPlist(appPath)
		if bundleID == "" || IsSupported(bundleID) || strings.HasPrefix(bundleID, ownOrganizationPrefix) {
			continue
		}

		name, _ := p.NameWithContext(ctx)
		if unsupported[bundleID] {
			matches = append(matches, UnsupportedMatch{PID: p.Pid, Name: name, BundleID: bundleID, Score: scoreThreshold})
			continue
		}
		// Runtime fallback for an app launched after the last sweep.
		if score, ok := scoreAppBundle(appPath); ok {
			matches = append(matches, UnsupportedMatch{PID: p.Pid, Name: name, BundleID: bundleID, Score: score})
		}
	}
	return matches, nil
}

// scan walks appScanDirs for app bundles scoring at or above threshold,
// refreshing at most every RescanInterval.
func (c *heuristicCache) scan() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsupported != nil && time.Since(c.scannedAt) < RescanInterval {
		return c.unsupported
	}

	result := make(map[string]bool)
	for _, dir := range appScanDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".app") {
				continue
			}
			appPath := filepath.Join(dir, entry.Name())
			if _, ok := scoreAppBundle(appPath); !ok {
				continue
			}
			bundleID := bundleIDFromPlist(appPath)
			if bundleID == "" || IsSupported(bundleID) || strings.HasPrefix(bundleID, ownOrganizationPrefix) {
				continue
			}
			result[bundleID] = true
		}
	}
	c.scannedAt = time.Now()
	c.unsupported = result
	return result
}

// scoreAppBundle reads an app bundle's Info.plist and applies the
// scored heuristic from spec.md §4.4 step 1: a strong signal (http/https
// handler or a bundled browser engine) gates classification, then points
// accumulate from handler (+2), declared web content types (+1), engine
// framework (+2), and name keyword (+1); ok is true only once the total
// reaches scoreThreshold.
func scoreAppBundle(appPath string) (score int, ok bool) {
	info, err := readInfoPlist(appPath)
	if err != nil {
		return 0, false
	}

	declaresHandler := declaresURLScheme(info, "http") || declaresURLScheme(info, "https")
	bundlesEngine := hasBrowserEngineFramework(appPath)
	if !declaresHandler && !bundlesEngine {
		return 0, false
	}

	if declaresHandler {
		score += 2
	}
	if declaresDocumentTypes(info) {
		score++
	}
	if bundlesEngine {
		score += 2
	}
	if hasBrowserKeyword(info, appPath) {
		score++
	}
	return score, score >= scoreThreshold
}

func readInfoPlist(appPath string) (map[string]interface{}, error) {
	data, err := os.ReadFile(filepath.Join(appPath, "Contents", "Info.plist"))
	if err != nil {
		return nil, err
	}
	var info map[string]interface{}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return info, nil
}

func bundleIDFromPlist(appPath string) string {
	info, err := readInfoPlist(appPath)
	if err != nil {
		return ""
	}
	id, _ := info["CFBundleIdentifier"].(string)
	return id
}

func declaresURLScheme(info map[string]interface{}, scheme string) bool {
	urlTypes, _ := info["CFBundleURLTypes"].([]interface{})
	for _, t := range urlTypes {
		m, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		schemes, _ := m["CFBundleURLSchemes"].([]interface{})
		for _, s := range schemes {
			if str, ok := s.(string); ok && strings.EqualFold(str, scheme) {
				return true
			}
		}
	}
	return false
}

func declaresDocumentTypes(info map[string]interface{}) bool {
	if docs, ok := info["CFBundleDocumentTypes"].([]interface{}); ok && len(docs) > 0 {
		return true
	}
	exported, _ := info["UTExportedTypeDeclarations"].([]interface{})
	imported, _ := info["UTImportedTypeDeclarations"].([]interface{})
	return len(exported) > 0 || len(imported) > 0
}

func hasBrowserEngineFramework(appPath string) bool {
	for _, fw := range browserEngineFrameworks {
		if _, err := os.Stat(filepath.Join(appPath, "Contents", "Frameworks", fw)); err == nil {
			return true
		}
	}
	return false
}

func hasBrowserKeyword(info map[string]interface{}, appPath string) bool {
	name, _ := info["CFBundleName"].(string)
	haystack := strings.ToLower(fmt.Sprintf("%s %s", name, filepath.Base(appPath)))
	for _, kw := range browserKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// appBundlePath extracts the ".../Foo.app" root from a MacOS executable
// path (".../Foo.app/Contents/MacOS/Foo").
func appBundlePath(exe string) string {
	idx := strings.Index(exe, ".app/Contents/MacOS/")
	if idx == -1 {
		return ""
	}
	return exe[:idx+4]
}
