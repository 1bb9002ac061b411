// Package googlecalendar implements the CalendarAdapter capability set
// (C2) for Google Calendar. Per spec §9's Open Question, calendar events
// are write-through only: this adapter is reachable from the Tool-Server
// multiplexer (C9) but the Ingestion Pipeline never calls it.
package googlecalendar

import (
	"context"

	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/pkg/errs"
	"github.com/syncorch/syncd/pkg/retry"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"time"
)

type Adapter struct {
	userID       string
	clientID     string
	clientSecret string
	store        *credusecase.Store
	retryPolicy  retry.Policy

	authenticated bool
	svc           *calendarapi.Service
}

func New(userID, clientID, clientSecret string, store *credusecase.Store, retryPolicy retry.Policy) *Adapter {
	return &Adapter{userID: userID, clientID: clientID, clientSecret: clientSecret, store: store, retryPolicy: retryPolicy}
}

func (a *Adapter) Tag() provdomain.Tag { return provdomain.TagGoogleCalendar }

func (a *Adapter) Authenticate(ctx context.Context) (bool, error) {
	result := a.store.Check(ctx, a.userID, creddomain.ProviderGoogle)
	if !result.Authenticated || !result.Valid {
		return false, result.Err
	}
	cred, _, err := a.store.Load(a.userID, creddomain.ProviderGoogle)
	if err != nil {
		return false, err
	}
	token := &oauth2.Token{AccessToken: cred.AccessToken, RefreshToken: cred.RefreshToken, Expiry: cred.Expiry, TokenType: "Bearer"}
	cfg := &oauth2.Config{ClientID: a.clientID, ClientSecret: a.clientSecret, Endpoint: google.Endpoint}
	client := oauth2.NewClient(ctx, cfg.TokenSource(ctx, token))

	svc, err := calendarapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return false, errs.New(errs.AuthFailed, "unable to create Calendar service", err)
	}
	a.svc = svc
	a.authenticated = true
	return true, nil
}

func classifyCalErr(err error) error {
	if err == nil {
		return nil
	}
	if gerr, ok := err.(*googleapi.Error); ok {
		switch {
		case gerr.Code == 429:
			return errs.New(errs.RateLimited, gerr.Message, err)
		case gerr.Code >= 500:
			return errs.New(errs.TransientUpstream, gerr.Message, err)
		case gerr.Code == 404:
			return errs.New(errs.NotFound, gerr.Message, err)
		case gerr.Code >= 400:
			return errs.New(errs.PermanentUpstream, gerr.Message, err)
		}
	}
	return errs.New(errs.TransientUpstream, "network error", err)
}

func (a *Adapter) ListEvents(ctx context.Context, from, to time.Time) ([]provdomain.CalendarEvent, error) {
	if !a.authenticated {
		return nil, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	var resp *calendarapi.Events
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		r, callErr := a.svc.Events.List("primary").
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).OrderBy("startTime").Context(ctx).Do()
		if callErr != nil {
			return classifyCalErr(callErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]provdomain.CalendarEvent, 0, len(resp.Items))
	for _, e := range resp.Items {
		out = append(out, toEvent(e))
	}
	return out, nil
}

func toEvent(e *calendarapi.Event) provdomain.CalendarEvent {
	start := parseEventTime(e.Start)
	end := parseEventTime(e.End)
	var attendees []string
	for _, a := range e.Attendees {
		attendees = append(attendees, a.Email)
	}
	return provdomain.CalendarEvent{
		EventID: e.Id, Summary: e.Summary, Description: e.Description,
		Start: start, End: end, Attendees: attendees, Location: e.Location,
	}
}

func parseEventTime(t *calendarapi.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		parsed, _ := time.Parse(time.RFC3339, t.DateTime)
		return parsed
	}
	if t.Date != "" {
		parsed, _ := time.Parse("2006-01-02", t.Date)
		return parsed
	}
	return time.Time{}
}

func fromEvent(e provdomain.CalendarEvent) *calendarapi.Event {
	var attendees []*calendarapi.EventAttendee
	for _, addr := range e.Attendees {
		attendees = append(attendees, &calendarapi.EventAttendee{Email: addr})
	}
	return &calendarapi.Event{
		Id: e.EventID, Summary: e.Summary, Description: e.Description, Location: e.Location,
		Start:     &calendarapi.EventDateTime{DateTime: e.Start.Format(time.RFC3339)},
		End:       &calendarapi.EventDateTime{DateTime: e.End.Format(time.RFC3339)},
		Attendees: attendees,
	}
}

func (a *Adapter) CreateEvent(ctx context.Context, event provdomain.CalendarEvent) (provdomain.CalendarEvent, error) {
	if !a.authenticated {
		return provdomain.CalendarEvent{}, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	var created *calendarapi.Event
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		e, callErr := a.svc.Events.Insert("primary", fromEvent(event)).Context(ctx).Do()
		if callErr != nil {
			return classifyCalErr(callErr)
		}
		created = e
		return nil
	})
	if err != nil {
		return provdomain.CalendarEvent{}, err
	}
	return toEvent(created), nil
}

func (a *Adapter) UpdateEvent(ctx context.Context, event provdomain.CalendarEvent) (provdomain.CalendarEvent, error) {
	if !a.authenticated {
		return provdomain.CalendarEvent{}, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	var updated *calendarapi.Event
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		e, callErr := a.svc.Events.Update("primary", event.EventID, fromEvent(event)).Context(ctx).Do()
		if callErr != nil {
			return classifyCalErr(callErr)
		}
		updated = e
		return nil
	})
	if err != nil {
		return provdomain.CalendarEvent{}, err
	}
	return toEvent(updated), nil
}

var _ provdomain.CalendarAdapter = (*Adapter)(nil)
