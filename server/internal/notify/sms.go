package notify

import (
	"context"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type SMSSender interface {
	Send(ctx context.Context, to string, body string) error
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

type twilioSender struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSender(cfg TwilioConfig) SMSSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioSender(client, cfg.From)
}

func newTwilioSender(client *twilio.RestClient, from string) *twilioSender {
	return &twilioSender{client: client, from: from}
}

func (s *twilioSender) Send(ctx context.Context, to string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return transportError(err, "failed to send sms")
	}
	return nil
}
