package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/large-farva/earshot/internal/catalog"
	"github.com/large-farva/earshot/internal/pipeline"
)

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	songs, err := a.store.Count(r.Context())
	if err != nil {
		a.log.Printf("status: count songs: %v", err)
	}

	resp := map[string]any{
		"name":           "earshot",
		"state":          a.State(),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"clients":        a.wsHub.ClientCount(),
		"songs":          songs,
		"mode":           "demo",
	}
	if id := a.runner.CurrentID(); id != "" {
		resp["recording_id"] = id
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
	})
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{}
	allOK := true

	if n, err := a.store.Count(r.Context()); err != nil {
		checks["catalog"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		checks["catalog"] = map[string]any{"ok": true, "songs": n, "path": a.cfg.Catalog.Path}
	}

	checks["pipeline"] = map[string]any{"ok": true, "busy": a.runner.Busy()}
	checks["websocket"] = map[string]any{"ok": true, "clients": a.wsHub.ClientCount()}

	// Config file readable.
	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

// ---------------------------------------------------------------------------
// Recording
// ---------------------------------------------------------------------------

func (a *App) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := a.runner.Record(r.Context())
	if errors.Is(err, pipeline.ErrBusy) {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		jsonError(w, "failed to start recording: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "started",
		"message": "Recording started successfully",
		"id":      id,
	})
}

func (a *App) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.runner.Cancel(r.Context()); err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "recording cancelled"})
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

func (a *App) handleSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := a.store.List(r.Context())
	if err != nil {
		jsonError(w, "failed to fetch songs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (a *App) handleAddSong(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Artist string `json:"artist"`
		Title  string `json:"title"`
		Album  string `json:"album"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	song, err := a.store.Add(r.Context(), req.Artist, req.Title, req.Album)
	if errors.Is(err, catalog.ErrMissingFields) {
		jsonError(w, "Artist and title are required", http.StatusBadRequest)
		return
	}
	if err != nil {
		jsonError(w, "failed to add song: "+err.Error(), http.StatusInternalServerError)
		return
	}

	a.log.Printf("added song %d: %s - %s", song.ID, song.Artist, song.Title)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Added %s - %s", song.Artist, song.Title),
		"song":    song,
	})
}

func (a *App) handleSearchSongs(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, "query parameter 'q' is required", http.StatusBadRequest)
		return
	}

	songs, err := a.store.Search(r.Context(), q)
	if err != nil {
		jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{
		"ok":    false,
		"error": msg,
	})
}
