package slackpulse

import (
	"context"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/slackpulse/internal/slackapi"
)

// ActivePlaceholder is reported as the active member count when real
// presence data is unavailable. conversations.info has no presence data and
// querying users.getPresence per member does not scale to large channels.
const ActivePlaceholder = 42

const (
	defaultPresenceMaxMembers  = 100
	defaultPresenceConcurrency = 5
)

// ActiveCounter computes the active member count of a channel.
//
// total is the member count just read from conversations.info.
type ActiveCounter interface {
	CountActive(ctx context.Context, channelID string, total int) (int, error)
}

// PlaceholderCounter always reports [ActivePlaceholder]. It is the default.
type PlaceholderCounter struct{}

// CountActive implements [ActiveCounter].
func (PlaceholderCounter) CountActive(context.Context, string, int) (int, error) {
	return ActivePlaceholder, nil
}

// presenceCounter asks Slack for the presence of every member, for channels
// small enough that this stays within rate limits. Larger channels fall back
// to the placeholder.
type presenceCounter struct {
	api         slackapi.Service
	maxMembers  int
	concurrency int
}

func (c *presenceCounter) CountActive(ctx context.Context, channelID string, total int) (int, error) {
	if total > c.maxMembers {
		return ActivePlaceholder, nil
	}

	members, err := c.api.ChannelMembers(ctx, channelID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count active members", goerr.V(ChannelKey, channelID))
	}

	var active atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, userID := range members {
		g.Go(func() error {
			presence, err := c.api.UserPresence(gctx, userID)
			if err != nil {
				return err
			}
			if presence == slackapi.PresenceActive {
				active.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, goerr.Wrap(err, "failed to count active members", goerr.V(ChannelKey, channelID))
	}

	return int(active.Load()), nil
}
