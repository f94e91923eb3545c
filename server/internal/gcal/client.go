package gcal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Client is the subset of the Calendar API the service uses, scoped to one user's primary calendar.
type Client interface {
	// ListUpcoming returns single events starting in [timeMin, timeMax), ordered by start time.
	ListUpcoming(ctx context.Context, timeMin time.Time, timeMax time.Time) ([]*calendar.Event, error)
	// Watch registers a push channel delivering change notifications to address.
	Watch(ctx context.Context, channelID string, address string, token string) (*calendar.Channel, error)
	Stop(ctx context.Context, channelID string, resourceID string) error
}

// Factory builds a Client on top of a token source.
type Factory interface {
	NewClient(ctx context.Context, ts oauth2.TokenSource) (Client, error)
}

type googleFactory struct {
	opts []option.ClientOption
}

// NewFactory returns a Factory for the Google Calendar API. Extra options are appended to
// every client, which lets tests point the client at a local server.
func NewFactory(opts ...option.ClientOption) Factory {
	return &googleFactory{opts: opts}
}

func (f *googleFactory) NewClient(ctx context.Context, ts oauth2.TokenSource) (Client, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, f.opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create calendar service")
	}
	return &googleClient{service: srv}, nil
}

type googleClient struct {
	service *calendar.Service
}

func (c *googleClient) ListUpcoming(ctx context.Context, timeMin time.Time, timeMax time.Time) ([]*calendar.Event, error) {
	request := c.service.Events.List(constant.PRIMARY_CALENDAR_ID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	var pageToken string
	var allEvents []*calendar.Event
	for ok := true; ok; ok = pageToken != "" {
		request.PageToken(pageToken)
		events, err := request.Do()
		if err != nil {
			return nil, err
		}
		allEvents = append(allEvents, events.Items...)
		pageToken = events.NextPageToken
	}
	return allEvents, nil
}

func (c *googleClient) Watch(ctx context.Context, channelID string, address string, token string) (*calendar.Channel, error) {
	return c.service.Events.Watch(constant.PRIMARY_CALENDAR_ID, &calendar.Channel{
		Address: address,
		Id:      channelID,
		Token:   token,
		Type:    constant.WATCH_CHANNEL_TYPE,
	}).Context(ctx).Do()
}

func (c *googleClient) Stop(ctx context.Context, channelID string, resourceID string) error {
	return c.service.Channels.Stop(&calendar.Channel{
		Id:         channelID,
		ResourceId: resourceID,
	}).Context(ctx).Do()
}
