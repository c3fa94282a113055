package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"feedwatch/internal/monitor"
)

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, zerolog.Nop())
	alert := Alert{
		FeedName:        "orders",
		COBDate:         time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Verdict:         monitor.VerdictPartial,
		RecordCount:     320,
		CompletenessPct: decimal.NewFromInt(64),
		ExpectedTime:    "10:30",
		ObservedAt:      time.Date(2025, 6, 11, 10, 35, 0, 0, time.UTC),
	}

	if err := notifier.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if received.FeedName != "orders" || received.Status != "partial" {
		t.Fatalf("unexpected payload %+v", received)
	}
	if received.COBDate != "2025-06-10" {
		t.Fatalf("cob_date should be ISO date, got %q", received.COBDate)
	}
	if received.RecordCount != 320 || received.CompletenessPct != "64.00" {
		t.Fatalf("unexpected counts in payload %+v", received)
	}
	if received.Error != "" {
		t.Fatalf("error should be omitted, got %q", received.Error)
	}
}

func TestWebhookNotifierRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Send(context.Background(), missingAlert()); err == nil {
		t.Fatal("non-2xx response should error")
	}
}
