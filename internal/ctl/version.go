package ctl

import (
	"context"
	"io"
)

// Build-time variables set via -ldflags.
var (
	Version   = "dev"
	GoVersion = "unknown"
)

// VersionInfo fetches the daemon version via GET /api/version and displays
// it next to the CLI's own. An unreachable daemon is shown, not returned.
func VersionInfo(ctx context.Context, c *Client, out io.Writer, jsonOutput bool) error {
	daemon, daemonErr := c.Version(ctx)

	if jsonOutput {
		resp := map[string]any{
			"cli": map[string]any{
				"version":    Version,
				"go_version": GoVersion,
			},
		}
		if daemonErr == nil {
			resp["daemon"] = daemon
		} else {
			resp["daemon_error"] = daemonErr.Error()
		}
		return PrintJSON(out, resp)
	}

	var d *VersionResponse
	if daemonErr == nil {
		d = &daemon
	}
	PrintVersion(out, Version+" ("+GoVersion+")", d)
	return nil
}
