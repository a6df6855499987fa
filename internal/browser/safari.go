package browser

import (
	"context"

	"github.com/focusdragon/enforcer/internal/osascript"
)

// SafariPrivateWindowDetected checks whether Safari currently has a
// private window open. Safari's App Extension cannot report this via a
// heartbeat file the way Chromium-family extensions can, so the
// Browser Enforcer falls back to a System Events window-title probe for
// Safari specifically (spec.md §4.4: "Safari requires special-cased
// private-window detection").
func SafariPrivateWindowDetected(ctx context.Context) (bool, error) {
	return osascript.HasPrivateWindow(ctx, "Safari")
}
