package model

// WebhookNotification is the header set of one push notification.
type WebhookNotification struct {
	ChannelID     string
	ChannelToken  string
	ResourceID    string
	ResourceState string
}

type WebhookResult int

const (
	WebhookAcknowledged WebhookResult = iota
	WebhookNotFound
	WebhookFailed
)

func (r WebhookResult) String() string {
	switch r {
	case WebhookAcknowledged:
		return "acknowledged"
	case WebhookNotFound:
		return "not_found"
	default:
		return "failed"
	}
}
