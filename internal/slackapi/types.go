package slackapi

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// ErrMissingTeam is returned when team.info answers without a team object,
// which in practice means the workspace name or token is wrong.
var ErrMissingTeam = goerr.New("bad response - verify workspace name and credentials")

// Service provides the subset of the Slack Web API used to track a workspace.
type Service interface {
	// ListChannels returns every non-archived public channel, following
	// pagination cursors until exhausted
	ListChannels(ctx context.Context) ([]Channel, error)

	// TeamInfo returns the workspace's team metadata
	TeamInfo(ctx context.Context) (*Team, error)

	// ChannelInfo returns a single channel including its member count
	ChannelInfo(ctx context.Context, channelID string) (*Channel, error)

	// ChannelMembers returns the user IDs of every member of a channel
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)

	// UserPresence returns "active" or "away" for a user
	UserPresence(ctx context.Context, userID string) (string, error)
}

// Channel represents a Slack channel
type Channel struct {
	ID         string
	Name       string
	NumMembers int
	IsGeneral  bool
	IsArchived bool
	Topic      string
	Purpose    string
}

// Team represents a Slack workspace
type Team struct {
	ID     string
	Name   string
	Domain string
	Icon   Icon
}

// Icon is the subset of a team icon we care about
type Icon struct {
	// Image132 is the 132px icon URL
	Image132 string
	// IsDefault is true when the team still uses Slack's placeholder icon
	IsDefault bool
}

// PresenceActive is the presence value Slack reports for an active user.
const PresenceActive = "active"
