package ctl

import (
	"context"
	"io"
)

// Status fetches the daemon status and prints a formatted summary.
func Status(ctx context.Context, c *Client, out io.Writer, jsonOutput bool) error {
	s, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return PrintJSON(out, s)
	}
	PrintStatus(out, s, c.BaseURL())
	return nil
}
