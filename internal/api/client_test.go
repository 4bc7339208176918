package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClient_GetAndError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"story not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	var resp struct {
		Status string `json:"status"`
	}
	if err := client.Get(ctx, "/ok", &resp); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}

	err := client.Get(ctx, "/missing", nil)
	if err == nil || !strings.Contains(err.Error(), "story not found") {
		t.Errorf("Get(/missing) error = %v, want server error message", err)
	}

	err = client.Delete(ctx, "/other")
	if err == nil || !strings.Contains(err.Error(), "(500): boom") {
		t.Errorf("Delete(/other) error = %v, want raw body in error", err)
	}
}

func TestClient_PostStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"type":"chapter","text":"` + body["topic"] + `"}` + "\n\n"))
		w.Write([]byte(`{"type":"done"}` + "\n"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	var types []string
	err := client.PostStream(context.Background(), "/gen", map[string]string{"topic": "dragons"}, func(line json.RawMessage) error {
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &msg); err != nil {
			return err
		}
		types = append(types, msg.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("PostStream() error = %v", err)
	}
	if len(types) != 2 || types[0] != "chapter" || types[1] != "done" {
		t.Errorf("types = %v, want [chapter done]", types)
	}
}

func TestClient_GetRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	data, ct, err := NewClient(srv.URL).GetRaw(context.Background(), "/api/assets/a.wav")
	if err != nil {
		t.Fatalf("GetRaw() error = %v", err)
	}
	if string(data) != "RIFF" || ct != "audio/wav" {
		t.Errorf("GetRaw() = %q, %q", data, ct)
	}
}

func TestOutputTo(t *testing.T) {
	data := map[string]any{"title": "Truyện 1"}

	var buf bytes.Buffer
	if err := OutputTo(&buf, OutputFormatJSON, data); err != nil {
		t.Fatalf("OutputTo(json) error = %v", err)
	}
	if !strings.Contains(buf.String(), `"title": "Truyện 1"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	if err := OutputTo(&buf, OutputFormatYAML, data); err != nil {
		t.Fatalf("OutputTo(yaml) error = %v", err)
	}
	if !strings.Contains(buf.String(), "title: Truyện 1") {
		t.Errorf("yaml output = %q", buf.String())
	}

	if err := OutputTo(&buf, OutputFormat("xml"), data); err == nil {
		t.Error("OutputTo(xml) should fail")
	}
}

func TestOutputToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := OutputToFile(map[string]string{"a": "b"}, path); err != nil {
		t.Fatalf("OutputToFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("output file is empty")
	}
}
