package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/extract" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart: %v", err)
		}
		if _, _, err := r.FormFile("screenshot"); err != nil {
			t.Errorf("screenshot part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hardwareSystemId": "ABC-12345",
			"overallVoltage":   48.7,
			"timestamp":        "2026-03-10T12:00:00Z",
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "token-1")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	input, err := client.Extract(context.Background(), []byte{0x89, 0x50}, "panel.png")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if input.HardwareSystemID != "ABC-12345" {
		t.Fatalf("hardware id = %q", input.HardwareSystemID)
	}
	if input.OverallVoltage == nil || *input.OverallVoltage != 48.7 {
		t.Fatalf("voltage = %v", input.OverallVoltage)
	}
}

func TestClientExtractNestedShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"timestamp": "2026-03-10T12:00:00Z",
			"analysis": map[string]any{
				"dlNumber":      "DL-123456",
				"stateOfCharge": 55.0,
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	input, err := client.Extract(context.Background(), []byte{1}, "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if input.Analysis == nil || input.Analysis.DLNumber != "DL-123456" {
		t.Fatalf("analysis = %+v", input.Analysis)
	}
}

func TestClientExtractErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Extract(context.Background(), []byte{1}, ""); err == nil {
		t.Fatalf("expected error on http 500")
	}
	if _, err := client.Extract(context.Background(), nil, ""); err == nil {
		t.Fatalf("expected error on empty image")
	}
	if _, err := NewClient("", ""); err == nil {
		t.Fatalf("expected error on empty base url")
	}
}
