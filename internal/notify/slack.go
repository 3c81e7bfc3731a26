package notify

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

const (
	slackUsername = "Newman API Tests"
	slackIcon     = ":test_tube:"
	slackFooter   = "Newman API Testing"
)

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Slack posts to an incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlack creates a Slack channel.
func NewSlack(webhookURL, channel string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		channel:    channel,
		client:     newHTTPClient(),
	}
}

// Name implements Channel.
func (s *Slack) Name() string {
	return "slack"
}

// Deliver implements Channel.
func (s *Slack) Deliver(ctx context.Context, msg Message) error {
	return postJSON(ctx, s.client, s.webhookURL, s.payload(msg))
}

func (s *Slack) payload(msg Message) slackPayload {
	payload := slackPayload{
		Channel:   s.channel,
		Username:  slackUsername,
		IconEmoji: slackIcon,
	}

	if msg.IsFailure() {
		payload.Attachments = []slackAttachment{{
			Color:  "danger",
			Title:  FailureTitle,
			Text:   msg.ErrorText(),
			Footer: slackFooter,
			TS:     msg.Time.Unix(),
		}}

		return payload
	}

	rec := msg.Record
	color := "good"
	if !rec.Passed() {
		color = "danger"
	}

	attachment := slackAttachment{
		Color: color,
		Title: resultTitle(rec),
		Fields: []slackField{
			{Title: "Total Assertions", Value: strconv.Itoa(rec.Stats.Assertions.Total), Short: true},
			{Title: "Failed Assertions", Value: strconv.Itoa(rec.Stats.Assertions.Failed), Short: true},
			{Title: "Duration", Value: seconds(rec.Duration), Short: true},
			{Title: "Requests", Value: strconv.Itoa(rec.Stats.Requests.Total), Short: true},
		},
		Footer: slackFooter,
		TS:     rec.Timestamp.Unix(),
	}

	if msg.Analysis != nil && !msg.Analysis.Insufficient {
		attachment.Text = strings.Join(msg.Analysis.Summary, " • ")
	}

	payload.Attachments = []slackAttachment{attachment}

	return payload
}
