package destination

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
)

func testRecord() *domain.ExportRecord {
	return &domain.ExportRecord{
		ExportID:        "abc123def456",
		ProviderID:      "prov-1",
		MatchConfidence: 90,
		Payload: map[string]string{
			"first_name":     "Jane",
			"last_name":      "Smith",
			"email":          "jane@example.com",
			"city":           "Austin",
			"state":          "TX",
			"zip":            "78701",
			"address_line1":  "100 Congress Ave",
			"license_number": "12345",
		},
	}
}

func TestGHLSendParsesContactID(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != "POST" || r.URL.Path != "/contacts/" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "jane@example.com" {
			t.Errorf("email = %v", body["email"])
		}
		json.NewEncoder(w).Encode(map[string]any{"contact": map[string]string{"id": "ghl-42"}})
	}))
	defer srv.Close()

	g := NewGHL(config.GHLConfig{APIKey: "key", LocationID: "loc", BaseURL: srv.URL}, srv.Client(), srv.Client())
	id, err := g.Send(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "ghl-42" {
		t.Errorf("external id = %q, want ghl-42", id)
	}
	if gotAuth != "Bearer key" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestGHLReverseTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := NewGHL(config.GHLConfig{APIKey: "key", BaseURL: srv.URL}, srv.Client(), srv.Client())
	rec := testRecord()
	rec.ExternalID = "ghl-42"
	if err := g.Reverse(context.Background(), rec); err != nil {
		t.Fatalf("Reverse on 404: %v", err)
	}
}

func TestGHLUnconfigured(t *testing.T) {
	g := NewGHL(config.GHLConfig{}, http.DefaultClient, http.DefaultClient)
	if _, err := g.Send(context.Background(), testRecord()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestInstantlySendRequiresEmail(t *testing.T) {
	i := NewInstantly(config.InstantlyConfig{APIKey: "key"}, http.DefaultClient)
	rec := testRecord()
	delete(rec.Payload, "email")
	if _, err := i.Send(context.Background(), rec); err == nil {
		t.Fatal("expected error for missing email")
	}
}

func TestInstantlySendUsesEmailAsExternalID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/lead/add") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["campaign_id"] != "camp-1" {
			t.Errorf("campaign_id = %v", body["campaign_id"])
		}
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	i := NewInstantly(config.InstantlyConfig{APIKey: "key", CampaignID: "camp-1", BaseURL: srv.URL}, srv.Client())
	id, err := i.Send(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "jane@example.com" {
		t.Errorf("external id = %q", id)
	}
}

func TestLobSendRendersTemplate(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		json.NewEncoder(w).Encode(map[string]string{"id": "psc_123"})
	}))
	defer srv.Close()

	l := NewLob(config.LobConfig{APIKey: "key", BaseURL: srv.URL},
		"postcards", "Hello Dr. {{ last_name }} of {{ city }}", srv.Client(), srv.Client())
	id, err := l.Send(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "psc_123" {
		t.Errorf("external id = %q", id)
	}
	front := form["front"]
	if len(front) == 0 || front[0] != "Hello Dr. Smith of Austin" {
		t.Errorf("rendered front = %v", front)
	}
}

func TestLobSendRequiresAddress(t *testing.T) {
	l := NewLob(config.LobConfig{APIKey: "key"}, "postcards", "", http.DefaultClient, http.DefaultClient)
	rec := testRecord()
	delete(rec.Payload, "address_line1")
	if _, err := l.Send(context.Background(), rec); err == nil {
		t.Fatal("expected error for missing address")
	}
}

func TestLobReverseAlreadyDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	l := NewLob(config.LobConfig{APIKey: "key", BaseURL: srv.URL}, "letters", "", srv.Client(), srv.Client())
	rec := testRecord()
	rec.ExternalID = "ltr_9"
	if err := l.Reverse(context.Background(), rec); !errors.Is(err, ErrAlreadyDelivered) {
		t.Errorf("err = %v, want ErrAlreadyDelivered", err)
	}
}

func TestWebhookSendEchoesExportID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["provider_id"] != "prov-1" {
			t.Errorf("provider_id = %v", body["provider_id"])
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := NewWebhook(config.WebhookConfig{URL: srv.URL}, srv.Client())
	id, err := wh.Send(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "abc123def456" {
		t.Errorf("external id = %q", id)
	}
}

func TestRegistryReverserForNonReversible(t *testing.T) {
	r := NewRegistry(&config.Config{Send: config.SendConfig{TimeoutSeconds: 5}})
	if _, err := r.Reverser(domain.DestInstantly); !errors.Is(err, ErrNotReversible) {
		t.Errorf("instantly reverser err = %v, want ErrNotReversible", err)
	}
	if _, err := r.Reverser(domain.DestGHL); err != nil {
		t.Errorf("ghl reverser err = %v", err)
	}
}

func TestRateLimiterDailyCap(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRateLimiter(rdb)
	l.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	cfg := domain.DestinationConfig{RateLimitPerDay: 3}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, reason := l.Allow(ctx, domain.DestInstantly, cfg)
		if !ok {
			t.Fatalf("send %d denied: %s", i, reason)
		}
	}
	ok, reason := l.Allow(ctx, domain.DestInstantly, cfg)
	if ok {
		t.Fatal("fourth send allowed past daily cap of 3")
	}
	if !strings.Contains(reason, "daily") {
		t.Errorf("reason = %q, want daily window", reason)
	}
}

func TestRateLimiterHourlyWindowRolls(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	at := time.Date(2026, 3, 1, 12, 59, 0, 0, time.UTC)
	l := NewRateLimiter(rdb)
	l.now = func() time.Time { return at }

	cfg := domain.DestinationConfig{RateLimitPerHour: 1}
	ctx := context.Background()
	if ok, _ := l.Allow(ctx, domain.DestGHL, cfg); !ok {
		t.Fatal("first send denied")
	}
	if ok, _ := l.Allow(ctx, domain.DestGHL, cfg); ok {
		t.Fatal("second send in same hour allowed")
	}

	at = at.Add(2 * time.Minute) // next hour bucket
	if ok, _ := l.Allow(ctx, domain.DestGHL, cfg); !ok {
		t.Fatal("send in new hour denied")
	}
}

func TestRateLimiterNilAllowsEverything(t *testing.T) {
	var l *RateLimiter
	ok, _ := l.Allow(context.Background(), domain.DestGHL, domain.DestinationConfig{RateLimitPerHour: 1})
	if !ok {
		t.Fatal("nil limiter denied send")
	}
}
