package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"listingportal_backend/platform/logger"
)

type stubConfig struct {
	baseURL string
}

func (s stubConfig) GetAnalyticsBaseURL() string   { return s.baseURL }
func (s stubConfig) GetAnalyticsAPISecret() string { return "test-secret" }

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(stubConfig{baseURL: srv.URL}, logger.New("test"))
	c.policy = Policy{RateLimitBase: time.Millisecond, TransientBase: time.Millisecond, MaxAttempts: 3}
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c, srv
}

func writePage(w http.ResponseWriter, events []RawEvent, hasMore bool) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(exportPage{Events: events, HasMore: hasMore})
}

func TestPagerWalksAllPages(t *testing.T) {
	pages := [][]RawEvent{
		{{Name: "phone_click", DistinctID: "u1", Timestamp: 100}, {Name: "phone_click", DistinctID: "u2", Timestamp: 101}},
		{{Name: "message_sent", DistinctID: "u3", Timestamp: 102}},
	}
	var gotOffsets []string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotOffsets = append(gotOffsets, r.URL.Query().Get("offset"))
		if got := r.Header.Get("Authorization"); got != "Bearer test-secret" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Query().Get("offset") {
		case "0":
			writePage(w, pages[0], true)
		case "2":
			writePage(w, pages[1], false)
		default:
			t.Errorf("unexpected offset %s", r.URL.Query().Get("offset"))
		}
	})

	pager := c.Export(time.Unix(0, 0), time.Unix(200, 0), []string{"phone_click", "message_sent"}, 2)
	var all []RawEvent
	for pager.HasNext() {
		events, err := pager.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		all = append(all, events...)
	}

	if len(all) != 3 {
		t.Fatalf("fetched %d events, want 3", len(all))
	}
	if len(gotOffsets) != 2 || gotOffsets[0] != "0" || gotOffsets[1] != "2" {
		t.Fatalf("offsets = %v", gotOffsets)
	}
	if pager.Truncated() {
		t.Fatalf("walk should not be truncated")
	}
}

func TestPagerStopsOnShortPage(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Upstream claims more data but returns fewer rows than the limit.
		writePage(w, []RawEvent{{Name: "email_click", Timestamp: 1}}, true)
	})

	pager := c.Export(time.Unix(0, 0), time.Unix(10, 0), nil, 50)
	if _, err := pager.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if pager.HasNext() {
		t.Fatalf("short page must end the walk")
	}
}

func TestFetchRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(w, []RawEvent{{Name: "phone_click", Timestamp: 5}}, false)
	})

	pager := c.Export(time.Unix(0, 0), time.Unix(10, 0), nil, 10)
	events, err := pager.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(events) != 1 || calls != 3 {
		t.Fatalf("events=%d calls=%d", len(events), calls)
	}
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	pager := c.Export(time.Unix(0, 0), time.Unix(10, 0), nil, 10)
	_, err := pager.Next(context.Background())
	if err == nil {
		t.Fatalf("expected fetch error")
	}
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("error type %T", err)
	}
	if !fe.RateLimited || fe.Attempts != 3 || calls != 3 {
		t.Fatalf("rateLimited=%v attempts=%d calls=%d", fe.RateLimited, fe.Attempts, calls)
	}
	if pager.HasNext() {
		t.Fatalf("failed walk must end")
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})

	pager := c.Export(time.Unix(0, 0), time.Unix(10, 0), nil, 10)
	_, err := pager.Next(context.Background())
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("error type %T", err)
	}
	if fe.Status != http.StatusUnauthorized || calls != 1 {
		t.Fatalf("status=%d calls=%d, want a single non-retried attempt", fe.Status, calls)
	}
}

func TestBackoffDoubles(t *testing.T) {
	p := DefaultPolicy()
	if d := p.Delay(true, 1); d != 2*time.Second {
		t.Fatalf("rate-limit attempt 1 delay = %s", d)
	}
	if d := p.Delay(true, 2); d != 4*time.Second {
		t.Fatalf("rate-limit attempt 2 delay = %s", d)
	}
	if d := p.Delay(false, 1); d != time.Second {
		t.Fatalf("transient attempt 1 delay = %s", d)
	}
	if d := p.Delay(false, 3); d != 4*time.Second {
		t.Fatalf("transient attempt 3 delay = %s", d)
	}
}
