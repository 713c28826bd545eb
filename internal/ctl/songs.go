package ctl

import (
	"context"
	"io"

	"github.com/large-farva/earshot/internal/telemetry"
)

// Songs lists the catalog, or the songs matching query when it is set.
func Songs(ctx context.Context, c *Client, out io.Writer, query string, jsonOutput bool) error {
	var (
		songs []telemetry.Song
		err   error
		title = "SONG CATALOG"
	)
	if query != "" {
		songs, err = c.SearchSongs(ctx, query)
		title = "SEARCH: " + query
	} else {
		songs, err = c.Songs(ctx)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		if songs == nil {
			songs = []telemetry.Song{}
		}
		return PrintJSON(out, songs)
	}
	PrintSongs(out, title, songs)
	return nil
}
