package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sitebeacon/stats-service/internal/domain"
	"github.com/sitebeacon/stats-service/internal/service"
	"github.com/sitebeacon/stats-service/internal/transport/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo implements domain.StatsRepository with overridable function
// fields, defaulting each operation to a success no-op.
type fakeRepo struct {
	insertEvent       func(ctx context.Context, e domain.Event) error
	insertUniqueVisit func(ctx context.Context, v domain.UniqueVisit) error
	listDomains       func(ctx context.Context) ([]string, error)
	statsForDomain    func(ctx context.Context, d string) (domain.DomainStats, error)
	listEvents        func(ctx context.Context, d string, limit int) ([]domain.Event, error)
}

func (f *fakeRepo) InsertEvent(ctx context.Context, e domain.Event) error {
	if f.insertEvent != nil {
		return f.insertEvent(ctx, e)
	}
	return nil
}
func (f *fakeRepo) InsertUniqueVisit(ctx context.Context, v domain.UniqueVisit) error {
	if f.insertUniqueVisit != nil {
		return f.insertUniqueVisit(ctx, v)
	}
	return nil
}
func (f *fakeRepo) ListDomains(ctx context.Context) ([]string, error) {
	if f.listDomains != nil {
		return f.listDomains(ctx)
	}
	return nil, nil
}
func (f *fakeRepo) StatsForDomain(ctx context.Context, d string) (domain.DomainStats, error) {
	if f.statsForDomain != nil {
		return f.statsForDomain(ctx, d)
	}
	return domain.NewDomainStats(), nil
}
func (f *fakeRepo) ListEvents(ctx context.Context, d string, limit int) ([]domain.Event, error) {
	if f.listEvents != nil {
		return f.listEvents(ctx, d, limit)
	}
	return nil, nil
}

type fixedGeo struct{ info domain.GeoInfo }

func (g fixedGeo) Resolve(context.Context, string) domain.GeoInfo { return g.info }

func newTestRouter(repo *fakeRepo) http.Handler {
	svc := service.NewStatsService(repo, fixedGeo{info: domain.GeoInfo{Country: "Germany", City: "Berlin"}}, nil, 0, nil).
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	return rest.NewRouter(rest.RouterDeps{Handler: rest.NewHandler(svc)})
}

func doRequest(t *testing.T, router http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return rec, body
}

func TestIngest_JSONBody(t *testing.T) {
	var got domain.Event
	repo := &fakeRepo{insertEvent: func(_ context.Context, e domain.Event) error {
		got = e
		return nil
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
		strings.NewReader(`{"type":"visit","domain":"https://www.a.com","path":"/pricing","referrer":"https://google.com/"}`))
	// sendBeacon sends JSON with this Content-Type
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "203.0.113.9:54321"

	rec, body := doRequest(t, router, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "a.com", got.Domain)
	assert.Equal(t, domain.TypeVisit, got.Type)
	assert.Equal(t, "/pricing", got.Item)
	assert.Equal(t, "https://google.com/", got.Referrer)
	assert.Equal(t, "203.0.113.9", got.IP)
	assert.Equal(t, "Germany", got.Country)
	assert.Equal(t, "2025-06-01", got.Date)
}

func TestIngest_FormBody(t *testing.T) {
	var got domain.Event
	repo := &fakeRepo{insertEvent: func(_ context.Context, e domain.Event) error {
		got = e
		return nil
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
		strings.NewReader("type=click&domain=a.com&url=%2Fdownload%2Ffile.zip"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec, body := doRequest(t, router, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, domain.TypeClick, got.Type)
	assert.Equal(t, "/download/file.zip", got.Item)
}

func TestIngest_QueryParamsFallback(t *testing.T) {
	var got domain.Event
	repo := &fakeRepo{insertEvent: func(_ context.Context, e domain.Event) error {
		got = e
		return nil
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events?type=download&domain=a.com&path=/file.pdf", nil)

	rec, _ := doRequest(t, router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TypeDownload, got.Type)
	assert.Equal(t, "/file.pdf", got.Item)
}

func TestIngest_BodyWinsOverQuery(t *testing.T) {
	var got domain.Event
	repo := &fakeRepo{insertEvent: func(_ context.Context, e domain.Event) error {
		got = e
		return nil
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events?type=click&domain=ignored.com",
		strings.NewReader(`{"type":"visit","domain":"a.com"}`))

	_, _ = doRequest(t, router, req)
	assert.Equal(t, domain.TypeVisit, got.Type)
	assert.Equal(t, "a.com", got.Domain)
}

func TestIngest_DomainFromOriginHeader(t *testing.T) {
	var got domain.Event
	repo := &fakeRepo{insertEvent: func(_ context.Context, e domain.Event) error {
		got = e
		return nil
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
		strings.NewReader(`{"type":"visit"}`))
	req.Header.Set("Origin", "https://www.b.com")

	rec, body := doRequest(t, router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "b.com", got.Domain)
}

func TestIngest_ValidationFailuresAnswer200WithOKFalse(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"unknown type", `{"type":"view","domain":"a.com"}`, "event.bad_type"},
		{"empty payload", `{}`, "event.bad_type"},
		{"no domain anywhere", `{"type":"visit"}`, "event.no_domain"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inserted := false
			repo := &fakeRepo{insertEvent: func(context.Context, domain.Event) error {
				inserted = true
				return nil
			}}
			router := newTestRouter(repo)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(tc.body))
			rec, body := doRequest(t, router, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, false, body["ok"])
			errObj, ok := body["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tc.wantCode, errObj["code"])
			assert.False(t, inserted)
		})
	}
}

func TestIngest_StorageErrorIs500(t *testing.T) {
	repo := &fakeRepo{insertEvent: func(context.Context, domain.Event) error {
		return errors.New("pq: down")
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
		strings.NewReader(`{"type":"visit","domain":"a.com"}`))
	rec, body := doRequest(t, router, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "internal", errObj["code"])
	assert.Equal(t, "internal error", errObj["message"]) // no driver detail leaked
}

func TestIngest_ClientIPResolutionOrder(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(r *http.Request)
		wantIP string
	}{
		{"cf header wins", func(r *http.Request) {
			r.Header.Set("CF-Connecting-IP", "198.51.100.7")
			r.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
		}, "198.51.100.7"},
		{"first forwarded entry", func(r *http.Request) {
			r.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
		}, "203.0.113.1"},
		{"remote addr host", func(r *http.Request) {
			r.RemoteAddr = "192.0.2.5:1234"
		}, "192.0.2.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got domain.Event
			repo := &fakeRepo{insertEvent: func(_ context.Context, e domain.Event) error {
				got = e
				return nil
			}}
			router := newTestRouter(repo)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
				strings.NewReader(`{"type":"visit","domain":"a.com"}`))
			tc.setup(req)

			rec, _ := doRequest(t, router, req)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.wantIP, got.IP)
		})
	}
}

func TestSummary_Endpoint(t *testing.T) {
	repo := &fakeRepo{
		listDomains: func(context.Context) ([]string, error) { return []string{"a.com"}, nil },
		statsForDomain: func(_ context.Context, d string) (domain.DomainStats, error) {
			require.Equal(t, "a.com", d)
			return domain.DomainStats{
				UniqueVisitors: 2,
				Visits:         5,
				TopReferrers:   map[string]int{"google.com": 5},
				TopCountries:   map[string]int{"Germany": 5},
			}, nil
		},
	}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary?domains=https://WWW.A.com", nil)
	rec, body := doRequest(t, router, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])

	data := body["data"].(map[string]any)
	overall := data["overall"].(map[string]any)
	assert.EqualValues(t, 2, overall["unique_visitors"])
	assert.EqualValues(t, 5, overall["visits"])

	domains := data["domains"].(map[string]any)
	assert.Contains(t, domains, "a.com")
}

func TestListEvents_Endpoint(t *testing.T) {
	var gotDomain string
	var gotLimit int
	repo := &fakeRepo{listEvents: func(_ context.Context, d string, limit int) ([]domain.Event, error) {
		gotDomain, gotLimit = d, limit
		return []domain.Event{{
			OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Date:       "2025-06-01",
			Domain:     "a.com",
			Type:       domain.TypeVisit,
			Item:       "/",
			IP:         "1.2.3.4",
			Country:    "Germany",
		}}, nil
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?domain=https://www.a.com&limit=50", nil)
	rec, body := doRequest(t, router, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a.com", gotDomain)
	assert.Equal(t, 50, gotLimit)

	data := body["data"].(map[string]any)
	events := data["events"].([]any)
	require.Len(t, events, 1)
	first := events[0].(map[string]any)
	assert.Equal(t, "2025-06-01T12:00:00Z", first["ts"])
	assert.Equal(t, "visit", first["type"])
}

func TestListEvents_BadLimitGetsDefault(t *testing.T) {
	var gotLimit int
	repo := &fakeRepo{listEvents: func(_ context.Context, _ string, limit int) ([]domain.Event, error) {
		gotLimit = limit
		return nil, nil
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?limit=abc", nil)
	rec, _ := doRequest(t, router, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, gotLimit)
}

func TestPingAndHealthz(t *testing.T) {
	router := newTestRouter(&fakeRepo{})

	rec, body := doRequest(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "stats", data["pong"])

	rec, body = doRequest(t, router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	router := newTestRouter(&fakeRepo{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	// a caller-provided id is echoed back
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	svc := service.NewStatsService(&fakeRepo{}, fixedGeo{}, nil, 0, nil)
	router := rest.NewRouter(rest.RouterDeps{
		Handler:   rest.NewHandler(svc),
		RLEnabled: true,
		RLLimit:   2,
		RLWindow:  time.Minute,
	})

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "192.0.2.1:1000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
