package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inquiry-relay/inquiry-relay/internal/extract"
)

func TestDeliverPostsJSON(t *testing.T) {
	var gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	rec := extract.Record{
		InquiryID:       "ABC-1234",
		OriginatorEmail: "taro@example.com",
		DisplayTitle:    "[桧家住宅] イベントの参加お申し込みがありました",
	}

	if err := client.Deliver(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type: got %q", gotContentType)
	}

	var payload map[string]string
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if payload["inquiry_id"] != "ABC-1234" {
		t.Errorf("inquiry_id: got %q", payload["inquiry_id"])
	}
	if payload["originator_email"] != "taro@example.com" {
		t.Errorf("originator_email: got %q", payload["originator_email"])
	}
	// The payload carries every field even when empty.
	if _, ok := payload["visit_date"]; !ok {
		t.Error("empty fields should still be present in the payload")
	}
}

func TestDeliverNonOKStatusIsError(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"accepted is not success", http.StatusAccepted},
		{"server error", http.StatusInternalServerError},
		{"not found", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, 5*time.Second)
			if err := client.Deliver(context.Background(), extract.Record{}); err == nil {
				t.Errorf("status %d should be an error", tt.status)
			}
		})
	}
}

func TestDeliverConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, time.Second)
	if err := client.Deliver(context.Background(), extract.Record{}); err == nil {
		t.Error("unreachable endpoint should be an error")
	}
}

func TestDeliverHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, 5*time.Second)
	if err := client.Deliver(ctx, extract.Record{}); err == nil {
		t.Error("expired context should abort delivery")
	}
}
