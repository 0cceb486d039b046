package slackapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

const (
	// DefaultPageSize is the page size used for paginated list calls
	DefaultPageSize = 200
)

// HTTPDoer is the transport slack-go sends requests through
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// client implements Service interface
type client struct {
	api      *slack.Client
	apiURL   string
	pageSize int
}

// Option is a functional option for client configuration
type Option func(*clientConfig)

type clientConfig struct {
	apiURL     string
	httpClient HTTPDoer
	pageSize   int
}

// WithAPIURL overrides the Web API base URL. The URL must end with "/api/".
func WithAPIURL(u string) Option {
	return func(c *clientConfig) {
		c.apiURL = u
	}
}

// WithHTTPClient sets the transport used for every request
func WithHTTPClient(h HTTPDoer) Option {
	return func(c *clientConfig) {
		c.httpClient = h
	}
}

// WithPageSize sets the page size for paginated list calls
func WithPageSize(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WorkspaceAPIURL returns the Web API base URL of a workspace subdomain,
// e.g. "https://myteam.slack.com/api/" for host "myteam".
func WorkspaceAPIURL(host string) string {
	return "https://" + host + ".slack.com/api/"
}

// New creates a new Slack service with the provided token
func New(token string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack token is required")
	}

	cfg := &clientConfig{
		apiURL:   slack.APIURL,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if !strings.HasSuffix(cfg.apiURL, "/") {
		cfg.apiURL += "/"
	}

	slackOpts := []slack.Option{slack.OptionAPIURL(cfg.apiURL)}
	if cfg.httpClient != nil {
		slackOpts = append(slackOpts, slack.OptionHTTPClient(cfg.httpClient))
	}

	return &client{
		api:      slack.New(token, slackOpts...),
		apiURL:   cfg.apiURL,
		pageSize: cfg.pageSize,
	}, nil
}

// ListChannels retrieves all non-archived public channels
func (c *client) ListChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	var cursor string

	for {
		params := &slack.GetConversationsParameters{
			Types:           []string{"public_channel"},
			ExcludeArchived: true,
			Limit:           c.pageSize,
			Cursor:          cursor,
		}

		convs, nextCursor, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list channels", goerr.V("api_url", c.apiURL))
		}

		for _, conv := range convs {
			channels = append(channels, toChannel(conv))
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	return channels, nil
}

// TeamInfo retrieves the team metadata
func (c *client) TeamInfo(ctx context.Context) (*Team, error) {
	info, err := c.api.GetTeamInfoContext(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get team info", goerr.V("api_url", c.apiURL))
	}

	// slack-go hands back a zero TeamInfo when the payload has no "team" key
	if info == nil || (info.ID == "" && info.Name == "") {
		return nil, goerr.Wrap(ErrMissingTeam, "team object missing from team.info", goerr.V("api_url", c.apiURL))
	}

	return &Team{
		ID:     info.ID,
		Name:   info.Name,
		Domain: info.Domain,
		Icon:   toIcon(info.Icon),
	}, nil
}

// ChannelInfo retrieves a single channel with its member count
func (c *client) ChannelInfo(ctx context.Context, channelID string) (*Channel, error) {
	info, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID:         channelID,
		IncludeNumMembers: true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get channel info", goerr.V("channel_id", channelID))
	}

	ch := toChannel(*info)
	return &ch, nil
}

// ChannelMembers retrieves all member IDs of a channel
func (c *client) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	var members []string
	var cursor string

	for {
		ids, nextCursor, err := c.api.GetUsersInConversationContext(ctx, &slack.GetUsersInConversationParameters{
			ChannelID: channelID,
			Cursor:    cursor,
			Limit:     c.pageSize,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list channel members", goerr.V("channel_id", channelID))
		}
		members = append(members, ids...)

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	return members, nil
}

// UserPresence retrieves the presence of a user
func (c *client) UserPresence(ctx context.Context, userID string) (string, error) {
	p, err := c.api.GetUserPresenceContext(ctx, userID)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get user presence", goerr.V("user_id", userID))
	}
	return p.Presence, nil
}

// RetryAfter reports the delay Slack asked for when err is a rate-limit
// response.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

func toChannel(conv slack.Channel) Channel {
	return Channel{
		ID:         conv.ID,
		Name:       conv.Name,
		NumMembers: conv.NumMembers,
		IsGeneral:  conv.IsGeneral,
		IsArchived: conv.IsArchived,
		Topic:      conv.Topic.Value,
		Purpose:    conv.Purpose.Value,
	}
}

// toIcon reads the loosely typed icon map from team.info
func toIcon(m map[string]interface{}) Icon {
	var icon Icon
	if v, ok := m["image_132"].(string); ok {
		icon.Image132 = v
	}
	if v, ok := m["image_default"].(bool); ok {
		icon.IsDefault = v
	}
	return icon
}
