package ctl

import (
	"context"
	"io"
)

// Health checks daemon liveness via GET /healthz. An unreachable or
// unhealthy daemon is reported and returned as an error.
func Health(ctx context.Context, c *Client, out io.Writer, jsonOutput bool) error {
	body, err := c.Health(ctx)

	if jsonOutput {
		resp := map[string]any{"healthy": err == nil, "url": c.BaseURL()}
		if err != nil {
			resp["error"] = err.Error()
		}
		if perr := PrintJSON(out, resp); perr != nil {
			return perr
		}
		return err
	}

	PrintHealth(out, body, err)
	return err
}
