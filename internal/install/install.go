// Package install provisions the Enforcer's on-disk footprint and
// registers it with launchd, the macOS analogue of the teacher's systemd
// unit installer: create directories, copy the binary into place, write
// a service descriptor, and load it.
package install

import (
	"fmt"
	"os"
	"os/exec"
	"text/template"

	"github.com/focusdragon/enforcer/internal/config"
	"github.com/focusdragon/enforcer/internal/utils"
)

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.InstallPath}}</string>
		<string>-run</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.LogDir}}/stdout.log</string>
	<key>StandardErrorPath</key>
	<string>{{.LogDir}}/stderr.log</string>
</dict>
</plist>
`

type plistVars struct {
	Label       string
	InstallPath string
	LogDir      string
}

// Install copies the currently running binary into the privileged
// helper location, provisions the world-writable config directory the
// front-end shares with the Enforcer, writes the launchd plist, and
// loads it.
func Install() error {
	if !utils.RunningAsRoot(true) {
		return fmt.Errorf("install must be run as root")
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable path: %w", err)
	}
	if err := utils.CopyFile(exe, config.InstallPath); err != nil {
		return fmt.Errorf("copying binary to %s: %w", config.InstallPath, err)
	}
	if err := os.Chmod(config.InstallPath, 0o755); err != nil {
		return fmt.Errorf("chmod install path: %w", err)
	}

	// Config dir is world-writable: the unprivileged front-end needs to
	// write config.json and lock-state.json without elevation. The
	// Enforcer is the only privileged reader of these files.
	if err := os.MkdirAll(config.ConfigDir, 0o777); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.Chmod(config.ConfigDir, 0o777); err != nil {
		return fmt.Errorf("chmod config dir: %w", err)
	}
	if err := os.MkdirAll(config.HeartbeatDir, 0o777); err != nil {
		return fmt.Errorf("creating heartbeat dir: %w", err)
	}
	if err := os.MkdirAll(config.LogDir, 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	if err := writePlist(); err != nil {
		return err
	}

	return exec.Command("launchctl", "load", "-w", config.LaunchDaemonPlist).Run()
}

func writePlist() error {
	f, err := os.OpenFile(config.LaunchDaemonPlist, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating launchd plist: %w", err)
	}
	defer f.Close()

	tmpl := template.Must(template.New("plist").Parse(plistTemplate))
	return tmpl.Execute(f, plistVars{
		Label:       config.LaunchDaemonLabel,
		InstallPath: config.InstallPath,
		LogDir:      config.LogDir,
	})
}

// Uninstall unloads the launchd service and removes the installed
// binary and plist. Config files under ConfigDir are left in place for
// the front-end, which owns their lifecycle.
func Uninstall() error {
	if !utils.RunningAsRoot(true) {
		return fmt.Errorf("uninstall must be run as root")
	}

	if utils.IsLaunchdServiceLoaded(config.LaunchDaemonLabel) {
		if err := exec.Command("launchctl", "unload", "-w", config.LaunchDaemonPlist).Run(); err != nil {
			return fmt.Errorf("unloading launchd service: %w", err)
		}
	}

	if err := os.Remove(config.LaunchDaemonPlist); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing plist: %w", err)
	}
	if err := os.Remove(config.InstallPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing installed binary: %w", err)
	}
	return nil
}
