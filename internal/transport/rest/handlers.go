package rest

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/sitebeacon/stats-service/internal/domain"
	appCtx "github.com/sitebeacon/stats-service/internal/pkg/context"
	"github.com/sitebeacon/stats-service/internal/service"
	"github.com/sitebeacon/stats-service/internal/transport/rest/response"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	svc *service.StatsService
}

func NewHandler(svc *service.StatsService) *Handler {
	return &Handler{svc: svc}
}

// Ingest records one event submitted by a page beacon. Validation failures
// still answer 200 with ok:false — sendBeacon callers never read the
// status, and a 4xx would just show up as console noise on customer sites.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	sub := decodeSubmission(r)

	_, err := h.svc.Ingest(r.Context(), sub, clientMeta(r))
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.OK(w, http.StatusOK, nil)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context(), r.URL.Query().Get("domains"))
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.OK(w, http.StatusOK, sum)
}

type eventDTO struct {
	Timestamp string `json:"ts"`
	Domain    string `json:"domain"`
	Type      string `json:"type"`
	Item      string `json:"item"`
	Referrer  string `json:"referrer"`
	Country   string `json:"country"`
	IP        string `json:"ip"`
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	events, err := h.svc.ListEvents(r.Context(), q.Get("domain"), parseLimit(q.Get("limit")))
	if err != nil {
		handleErr(w, r, err)
		return
	}

	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, eventDTO{
			Timestamp: e.OccurredAt.UTC().Format(time.RFC3339),
			Domain:    e.Domain,
			Type:      string(e.Type),
			Item:      e.Item,
			Referrer:  e.Referrer,
			Country:   e.Country,
			IP:        e.IP,
		})
	}

	response.OK(w, http.StatusOK, map[string]any{"events": out})
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	response.OK(w, http.StatusOK, map[string]string{"pong": "stats"})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	response.OK(w, http.StatusOK, nil)
}

// decodeSubmission reads the payload from the first non-empty, well-formed
// source: JSON body, then form-encoded body, then query/form parameters.
func decodeSubmission(r *http.Request) domain.Submission {
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))

	if len(body) > 0 {
		var sub domain.Submission
		// sendBeacon posts JSON as text/plain, so sniff the body instead of
		// trusting Content-Type.
		if err := render.DecodeJSON(bytes.NewReader(body), &sub); err == nil && sub != (domain.Submission{}) {
			return sub
		}
		if vals, err := url.ParseQuery(string(body)); err == nil {
			if sub := submissionFromValues(vals); sub != (domain.Submission{}) {
				return sub
			}
		}
	}

	return submissionFromValues(r.URL.Query())
}

func submissionFromValues(vals url.Values) domain.Submission {
	return domain.Submission{
		Type:     vals.Get("type"),
		Domain:   vals.Get("domain"),
		Referrer: vals.Get("referrer"),
		Path:     vals.Get("path"),
		URL:      vals.Get("url"),
	}
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrBadEventType):
		fail(w, r, http.StatusOK, "event.bad_type", "bad event type")
	case errors.Is(err, domain.ErrNoDomain):
		fail(w, r, http.StatusOK, "event.no_domain", "no domain")
	default:
		// storage failures; do not leak internals
		fail(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	response.Fail(w, status, code, message, appCtx.GetRequestID(r.Context()))
}

func parseLimit(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
