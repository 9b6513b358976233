package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sethgrid/pester"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/iliyamo/trainer-booking/internal/logger"
)

const calendarScope = "https://www.googleapis.com/auth/calendar.events"

// TokenSourceFromFile loads a service account key and returns a token
// source scoped to calendar events.
func TokenSourceFromFile(ctx context.Context, path string) (oauth2.TokenSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, b, calendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse calendar credentials: %w", err)
	}
	return creds.TokenSource, nil
}

// GoogleClient implements Service over the Calendar v3 REST API.
type GoogleClient struct {
	baseURL    string
	calendarID string
	client     *pester.Client
	log        *zap.Logger
}

// NewGoogleClient authenticates every request with ts.  The transport makes
// a single attempt; callers retry through retry.Executor when they want to.
func NewGoogleClient(baseURL, calendarID string, ts oauth2.TokenSource, timeout time.Duration, l *zap.Logger) *GoogleClient {
	l = logger.Named(l, "calendar")
	hc := &http.Client{
		Timeout:   timeout,
		Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
	}
	c := pester.NewExtendedClient(hc)
	c.MaxRetries = 1
	c.LogHook = func(e pester.ErrEntry) {
		l.Warn("calendar request failed", zap.String("method", e.Method), zap.Error(e.Err))
	}
	return &GoogleClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		calendarID: calendarID,
		client:     c,
		log:        l,
	}
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventBody struct {
	ID                 string    `json:"id,omitempty"`
	Summary            string    `json:"summary"`
	Description        string    `json:"description,omitempty"`
	Start              eventTime `json:"start"`
	End                eventTime `json:"end"`
	ExtendedProperties *struct {
		Private map[string]string `json:"private,omitempty"`
	} `json:"extendedProperties,omitempty"`
}

func (g *GoogleClient) eventsURL() string {
	return g.baseURL + "/calendars/" + url.PathEscape(g.calendarID) + "/events"
}

func (g *GoogleClient) CreateEvent(ctx context.Context, ev EventDetails) (string, error) {
	body := eventBody{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       eventTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone},
		End:         eventTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.TimeZone},
	}
	if ev.ReservationID != "" {
		body.ExtendedProperties = &struct {
			Private map[string]string `json:"private,omitempty"`
		}{Private: map[string]string{"reservation_id": ev.ReservationID}}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.eventsURL(), bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create calendar event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", statusError("create calendar event", resp)
	}
	var created eventBody
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode calendar event: %w", err)
	}
	g.log.Info("calendar event created", zap.String("event_id", created.ID), zap.String("reservation_id", ev.ReservationID))
	return created.ID, nil
}

// DeleteEvent removes the event.  An event that is already gone counts as
// deleted.
func (g *GoogleClient) DeleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, g.eventsURL()+"/"+url.PathEscape(eventID), nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		g.log.Info("calendar event already gone", zap.String("event_id", eventID))
		return nil
	case resp.StatusCode >= 300:
		return statusError("delete calendar event", resp)
	}
	g.log.Info("calendar event deleted", zap.String("event_id", eventID))
	return nil
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: http %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg)))
}
