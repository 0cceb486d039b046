package slackpulse

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/jpalmerr/slackpulse/internal/slackapi"
)

// Sentinel errors. Match them with errors.Is; the returned errors carry
// extra context values via goerr.
var (
	// ErrChannelNotFound is returned when the workspace has no channel with
	// the default channel's name.
	ErrChannelNotFound = goerr.New("channel not found")

	// ErrBadTeamResponse is returned when team.info carries no team object.
	ErrBadTeamResponse = slackapi.ErrMissingTeam

	// ErrHostRequired is returned by [New] for an empty workspace host.
	ErrHostRequired = goerr.New("workspace host is required")

	// ErrTokenRequired is returned by [New] for an empty token.
	ErrTokenRequired = goerr.New("token is required")
)

// Context keys for error values
const (
	WorkspaceKey = "workspace"
	ChannelKey   = "channel"
)
