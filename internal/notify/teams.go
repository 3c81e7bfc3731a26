package notify

import (
	"context"
	"net/http"
	"strconv"
)

const (
	teamsSuccessColor = "00FF00"
	teamsFailureColor = "FF0000"
	teamsTimeLayout   = "2006-01-02 15:04:05 MST"
)

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Sections   []teamsSection `json:"sections"`
}

type teamsSection struct {
	ActivityTitle    string      `json:"activityTitle"`
	ActivitySubtitle string      `json:"activitySubtitle"`
	Text             string      `json:"text,omitempty"`
	Facts            []teamsFact `json:"facts,omitempty"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Teams posts a MessageCard to an incoming webhook.
type Teams struct {
	webhookURL string
	client     *http.Client
}

// NewTeams creates a Teams channel.
func NewTeams(webhookURL string) *Teams {
	return &Teams{
		webhookURL: webhookURL,
		client:     newHTTPClient(),
	}
}

// Name implements Channel.
func (t *Teams) Name() string {
	return "teams"
}

// Deliver implements Channel.
func (t *Teams) Deliver(ctx context.Context, msg Message) error {
	return postJSON(ctx, t.client, t.webhookURL, t.card(msg))
}

func (t *Teams) card(msg Message) teamsCard {
	card := teamsCard{
		Type:    "MessageCard",
		Context: "http://schema.org/extensions",
	}

	if msg.IsFailure() {
		card.ThemeColor = teamsFailureColor
		card.Summary = FailureTitle
		card.Sections = []teamsSection{{
			ActivityTitle:    FailureTitle,
			ActivitySubtitle: "Failed at " + msg.Time.Format(teamsTimeLayout),
			Text:             msg.ErrorText(),
		}}

		return card
	}

	rec := msg.Record

	card.ThemeColor = teamsSuccessColor
	if !rec.Passed() {
		card.ThemeColor = teamsFailureColor
	}

	card.Summary = "API Test Results - " + rateLabel(rec.SuccessRate) + " Success Rate"
	card.Sections = []teamsSection{{
		ActivityTitle:    "Newman API Test Results",
		ActivitySubtitle: "Executed on " + rec.Timestamp.Format(teamsTimeLayout),
		Facts: []teamsFact{
			{Name: "Success Rate", Value: rateLabel(rec.SuccessRate)},
			{Name: "Total Assertions", Value: strconv.Itoa(rec.Stats.Assertions.Total)},
			{Name: "Failed Assertions", Value: strconv.Itoa(rec.Stats.Assertions.Failed)},
			{Name: "Duration", Value: seconds(rec.Duration)},
			{Name: "Total Requests", Value: strconv.Itoa(rec.Stats.Requests.Total)},
		},
	}}

	if msg.Environment != "" {
		card.Sections[0].Facts = append(card.Sections[0].Facts, teamsFact{Name: "Environment", Value: msg.Environment})
	}

	return card
}
