// Package outlookcalendar implements the CalendarAdapter capability set
// (C2) for Outlook Calendar via Microsoft Graph. Per spec §9's Open
// Question, calendar events are write-through only: this adapter is
// reachable from the Tool-Server multiplexer (C9) but the Ingestion
// Pipeline never calls it.
package outlookcalendar

import (
	"context"
	"strings"
	"time"

	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/internal/provider/msgraphauth"
	"github.com/syncorch/syncd/pkg/errs"
	"github.com/syncorch/syncd/pkg/retry"

	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	graphusers "github.com/microsoftgraph/msgraph-sdk-go/users"
)

type Adapter struct {
	userID      string
	store       *credusecase.Store
	retryPolicy retry.Policy

	authenticated bool
	client        *msgraphsdk.GraphServiceClient
}

func New(userID string, store *credusecase.Store, retryPolicy retry.Policy) *Adapter {
	return &Adapter{userID: userID, store: store, retryPolicy: retryPolicy}
}

func (a *Adapter) Tag() provdomain.Tag { return provdomain.TagOutlookCalendar }

func (a *Adapter) Authenticate(ctx context.Context) (bool, error) {
	result := a.store.Check(ctx, a.userID, creddomain.ProviderMicrosoft)
	if !result.Authenticated || !result.Valid {
		return false, result.Err
	}
	client, err := msgraphauth.NewGraphClient(ctx, a.userID, a.store)
	if err != nil {
		return false, errs.New(errs.AuthFailed, "unable to create Graph client", err)
	}
	a.client = client
	a.authenticated = true
	return true, nil
}

func classifyGraphErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return errs.New(errs.RateLimited, msg, err)
	case strings.Contains(msg, "404"):
		return errs.New(errs.NotFound, msg, err)
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return errs.New(errs.AuthFailed, msg, err)
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		return errs.New(errs.TransientUpstream, msg, err)
	default:
		return errs.New(errs.TransientUpstream, msg, err)
	}
}

func (a *Adapter) ListEvents(ctx context.Context, from, to time.Time) ([]provdomain.CalendarEvent, error) {
	if !a.authenticated {
		return nil, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	query := &graphusers.ItemCalendarViewRequestBuilderGetQueryParameters{
		StartDateTime: ptr(from.UTC().Format(time.RFC3339)),
		EndDateTime:   ptr(to.UTC().Format(time.RFC3339)),
	}
	reqConfig := &graphusers.ItemCalendarViewRequestBuilderGetRequestConfiguration{QueryParameters: query}

	var resp graphmodels.EventCollectionResponseable
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		r, callErr := a.client.Me().CalendarView().Get(ctx, reqConfig)
		if callErr != nil {
			return classifyGraphErr(callErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]provdomain.CalendarEvent, 0)
	for _, e := range resp.GetValue() {
		out = append(out, toEvent(e))
	}
	return out, nil
}

func ptr(s string) *string { return &s }

func toEvent(e graphmodels.Eventable) provdomain.CalendarEvent {
	var id, summary, description, location string
	if e.GetId() != nil {
		id = *e.GetId()
	}
	if e.GetSubject() != nil {
		summary = *e.GetSubject()
	}
	if e.GetBodyPreview() != nil {
		description = *e.GetBodyPreview()
	}
	if loc := e.GetLocation(); loc != nil && loc.GetDisplayName() != nil {
		location = *loc.GetDisplayName()
	}
	var attendees []string
	for _, att := range e.GetAttendees() {
		if att.GetEmailAddress() != nil && att.GetEmailAddress().GetAddress() != nil {
			attendees = append(attendees, *att.GetEmailAddress().GetAddress())
		}
	}
	return provdomain.CalendarEvent{
		EventID: id, Summary: summary, Description: description, Location: location,
		Start: parseGraphDateTime(e.GetStart()), End: parseGraphDateTime(e.GetEnd()), Attendees: attendees,
	}
}

func parseGraphDateTime(dt graphmodels.DateTimeTimeZoneable) time.Time {
	if dt == nil || dt.GetDateTime() == nil {
		return time.Time{}
	}
	layout := "2006-01-02T15:04:05.0000000"
	if t, err := time.Parse(layout, *dt.GetDateTime()); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, *dt.GetDateTime())
	return t
}

func fromEvent(event provdomain.CalendarEvent) *graphmodels.Event {
	e := graphmodels.NewEvent()
	e.SetSubject(&event.Summary)
	body := graphmodels.NewItemBody()
	contentType := graphmodels.TEXT_BODYTYPE
	body.SetContentType(&contentType)
	body.SetContent(&event.Description)
	e.SetBody(body)

	loc := graphmodels.NewLocation()
	loc.SetDisplayName(&event.Location)
	e.SetLocation(loc)

	e.SetStart(toGraphDateTime(event.Start))
	e.SetEnd(toGraphDateTime(event.End))

	var attendees []graphmodels.Attendeeable
	for _, addr := range event.Attendees {
		a := addr
		att := graphmodels.NewAttendee()
		email := graphmodels.NewEmailAddress()
		email.SetAddress(&a)
		att.SetEmailAddress(email)
		attendees = append(attendees, att)
	}
	e.SetAttendees(attendees)
	return e
}

func toGraphDateTime(t time.Time) *graphmodels.DateTimeTimeZone {
	dt := graphmodels.NewDateTimeTimeZone()
	value := t.UTC().Format("2006-01-02T15:04:05.0000000")
	zone := "UTC"
	dt.SetDateTime(&value)
	dt.SetTimeZone(&zone)
	return dt
}

func (a *Adapter) CreateEvent(ctx context.Context, event provdomain.CalendarEvent) (provdomain.CalendarEvent, error) {
	if !a.authenticated {
		return provdomain.CalendarEvent{}, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	var created graphmodels.Eventable
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		e, callErr := a.client.Me().Events().Post(ctx, fromEvent(event), nil)
		if callErr != nil {
			return classifyGraphErr(callErr)
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
	var updated graphmodels.Eventable
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		e, callErr := a.client.Me().Events().ByEventId(event.EventID).Patch(ctx, fromEvent(event), nil)
		if callErr != nil {
			return classifyGraphErr(callErr)
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
