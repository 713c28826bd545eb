package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func daemonStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"earshot","state":"RECORDING","uptime_seconds":3725,"clients":2,"songs":5,"recording_id":"abc","mode":"demo"}`))
	})
	mux.HandleFunc("/api/songs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"title":"Hello","artist":"Adele"},{"id":2,"title":"Get Lucky","artist":"Daft Punk","album":"RAM"}]`))
	})
	mux.HandleFunc("/api/songs/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "none" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"title":"Hello","artist":"Adele"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusCommand(t *testing.T) {
	srv := daemonStub(t)
	c := NewClient(srv.URL, 0)

	var buf bytes.Buffer
	if err := Status(context.Background(), c, &buf, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"EARSHOT STATUS", "RECORDING", "1h 2m 5s", "abc"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := Status(context.Background(), c, &buf, true); err != nil {
		t.Fatal(err)
	}
	var s StatusResponse
	if err := json.Unmarshal(buf.Bytes(), &s); err != nil || s.Songs != 5 {
		t.Errorf("json status = %+v, %v", s, err)
	}
}

func TestSongsCommand(t *testing.T) {
	srv := daemonStub(t)
	c := NewClient(srv.URL, 0)
	ctx := context.Background()

	var buf bytes.Buffer
	if err := Songs(ctx, c, &buf, "", false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Get Lucky") || !strings.Contains(buf.String(), "2 song(s)") {
		t.Errorf("catalog output:\n%s", buf.String())
	}

	buf.Reset()
	if err := Songs(ctx, c, &buf, "none", false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No songs found.") {
		t.Errorf("search output:\n%s", buf.String())
	}

	buf.Reset()
	if err := Songs(ctx, c, &buf, "none", true); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("json search output %q", buf.String())
	}
}

func TestHealthAndVersionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewClient(url, 0)

	var buf bytes.Buffer
	if err := Health(context.Background(), c, &buf, false); err == nil {
		t.Error("Health should fail against a closed server")
	}
	if !strings.Contains(buf.String(), "UNHEALTHY") {
		t.Errorf("health output:\n%s", buf.String())
	}

	buf.Reset()
	if err := VersionInfo(context.Background(), c, &buf, false); err != nil {
		t.Errorf("VersionInfo: %v", err)
	}
	if !strings.Contains(buf.String(), "unreachable") {
		t.Errorf("version output:\n%s", buf.String())
	}
}
