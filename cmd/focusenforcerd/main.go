// Command focusenforcerd is the privileged background daemon described
// in the Enforcer specification: it ticks at a fixed interval, recomputes
// the effective policy from the config and lock-state files, and fans
// out to every enforcement subsystem.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/focusdragon/enforcer/internal/config"
	"github.com/focusdragon/enforcer/internal/install"
	"github.com/focusdragon/enforcer/internal/orchestrator"
)

func main() {
	runFlag := flag.Bool("run", false, "run the enforcement daemon in the foreground")
	installFlag := flag.Bool("install", false, "install the launchd service and provision directories")
	uninstallFlag := flag.Bool("uninstall", false, "unload and remove the launchd service")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	switch {
	case *versionFlag:
		fmt.Println("focusenforcerd (unversioned build)")
	case *installFlag:
		if err := install.Install(); err != nil {
			log.Fatalf("install failed: %v", err)
		}
		fmt.Println("installed")
	case *uninstallFlag:
		if err := install.Uninstall(); err != nil {
			log.Fatalf("uninstall failed: %v", err)
		}
		fmt.Println("uninstalled")
	case *runFlag:
		run()
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func run() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// A missing or malformed config at startup still boots with the
		// loader's documented not-blocking default; log it and continue,
		// per spec.md §7's rule that parse failures never abort a cycle.
		slog.Error("initial config load failed, starting with defaults", "error", err)
		cfg = &config.Config{}
	}
	config.SetupLogging(cfg)

	orch := orchestrator.New()
	orch.Run(context.Background())
}
