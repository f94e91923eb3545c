package notify

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/pkg/errors"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"gopkg.in/gomail.v2"
)

// Email is one outgoing message. Invite, when set, is attached as an .ics file.
type Email struct {
	To      string
	Subject string
	Body    string
	Invite  *Invite
}

type Invite struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) Mailer {
	return &smtpMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *smtpMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := BuildMessage(m.from, email)
	if err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(msg); err != nil {
		return transportError(err, "failed to send email")
	}
	return nil
}

// transportError keeps the cause text and matches models.ErrTransport.
func transportError(err error, msg string) error {
	return errors.Wrapf(models.ErrTransport, "%s: %v", msg, err)
}

// BuildMessage renders email as a MIME message from the given sender.
func BuildMessage(from string, email Email) (*gomail.Message, error) {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Body)

	if email.Invite != nil {
		ics, err := EncodeInvite(*email.Invite)
		if err != nil {
			return nil, err
		}
		msg.Attach("event.ics",
			gomail.SetHeader(map[string][]string{"Content-Type": {"text/calendar; charset=utf-8; method=PUBLISH"}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(ics)
				return err
			}),
		)
	}
	return msg, nil
}

// EncodeInvite renders a single VEVENT calendar.
func EncodeInvite(invite Invite) ([]byte, error) {
	event := ical.NewComponent(ical.CompEvent)
	event.Props.SetText(ical.PropUID, invite.UID)
	event.Props.SetText(ical.PropSummary, invite.Summary)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, invite.Start.UTC())
	if !invite.End.IsZero() {
		event.Props.SetDateTime(ical.PropDateTimeEnd, invite.End.UTC())
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calendar-reminders//EN")
	cal.Props.SetText(ical.PropMethod, "PUBLISH")
	cal.Children = append(cal.Children, event)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, errors.Wrap(err, "failed to encode invite")
	}
	return buf.Bytes(), nil
}
