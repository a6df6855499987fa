package browser

import (
	"os"
	"path/filepath"
	"testing"
)

func writeAppBundle(t *testing.T, root, name, infoPlistXML string, withEngine bool) string {
	t.Helper()
	appPath := filepath.Join(root, name+".app")
	contents := filepath.Join(appPath, "Contents")
	if err := os.MkdirAll(contents, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(contents, "Info.plist"), []byte(infoPlistXML), 0o644); err != nil {
		t.Fatal(err)
	}
	if withEngine {
		fwDir := filepath.Join(contents, "Frameworks", "WebKit.framework")
		if err := os.MkdirAll(fwDir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return appPath
}

const httpHandlerPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>com.example.browser</string>
	<key>CFBundleName</key>
	<string>ExampleBrowser</string>
	<key>CFBundleURLTypes</key>
	<array>
		<dict>
			<key>CFBundleURLSchemes</key>
			<array>
				<string>http</string>
				<string>https</string>
			</array>
		</dict>
	</array>
	<key>CFBundleDocumentTypes</key>
	<array>
		<dict>
			<key>CFBundleTypeName</key>
			<string>HTML document</string>
		</dict>
	</array>
</dict>
</plist>
`

const plainUtilityPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>com.example.calculator</string>
	<key>CFBundleName</key>
	<string>Calculator</string>
</dict>
</plist>
`

func TestScoreAppBundle_HTTPHandlerAndDocTypesClearsThreshold(t *testing.T) {
	dir := t.TempDir()
	appPath := writeAppBundle(t, dir, "ExampleBrowser", httpHandlerPlist, false)

	score, ok := scoreAppBundle(appPath)
	if !ok {
		t.Fatalf("expected score >= threshold, got score=%d", score)
	}
	// http handler (+2) + document types (+1) + keyword match on "Browser" (+1) = 4.
	if score < scoreThreshold {
		t.Errorf("expected score >= %d, got %d", scoreThreshold, score)
	}
}

func TestScoreAppBundle_PlainUtilityNeverFlagged(t *testing.T) {
	dir := t.TempDir()
	appPath := writeAppBundle(t, dir, "Calculator", plainUtilityPlist, false)

	_, ok := scoreAppBundle(appPath)
	if ok {
		t.Error("a bundle with no strong signal must never be classified as a browser")
	}
}

func TestScoreAppBundle_EngineFrameworkAndNameKeywordClearThreshold(t *testing.T) {
	dir := t.TempDir()
	appPath := writeAppBundle(t, dir, "WebKitBrowser", plainUtilityPlist, true)

	// No http handler: the engine framework is the strong signal (+2), and
	// the "browser" keyword in the bundle's file name adds +1 = 3.
	score, ok := scoreAppBundle(appPath)
	if !ok {
		t.Fatalf("bundled browser engine plus a name keyword should clear the threshold, got score=%d", score)
	}
}

func TestBundleIDFromPlist(t *testing.T) {
	dir := t.TempDir()
	appPath := writeAppBundle(t, dir, "ExampleBrowser", httpHandlerPlist, false)

	if got := bundleIDFromPlist(appPath); got != "com.example.browser" {
		t.Errorf("expected com.example.browser, got %q", got)
	}
}

func TestAppBundlePath(t *testing.T) {
	exe := "/Applications/ExampleBrowser.app/Contents/MacOS/ExampleBrowser"
	if got := appBundlePath(exe); got != "/Applications/ExampleBrowser.app" {
		t.Errorf("expected app bundle path extraction, got %q", got)
	}
	if got := appBundlePath("/usr/libexec/somedaemon"); got != "" {
		t.Errorf("expected empty app bundle path for a non-bundled executable, got %q", got)
	}
}
