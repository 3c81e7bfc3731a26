package notify

import (
	"github.com/ethpandaops/apiwatch/internal/config"
)

// ChannelsFromConfig returns every channel whose credentials are present.
func ChannelsFromConfig(cfg *config.Config) []Channel {
	var channels []Channel

	if cfg.Notifications.Slack.Enabled() {
		channels = append(channels, NewSlack(cfg.Notifications.Slack.WebhookURL, cfg.Notifications.Slack.Channel))
	}

	if cfg.Notifications.Teams.Enabled() {
		channels = append(channels, NewTeams(cfg.Notifications.Teams.WebhookURL))
	}

	if cfg.Email.Enabled() {
		channels = append(channels, NewEmail(cfg.Email))
	}

	return channels
}
