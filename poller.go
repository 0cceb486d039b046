package slackpulse

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/slackpulse/internal/poller"
	"github.com/jpalmerr/slackpulse/internal/slackapi"
)

const (
	defaultPollInterval   = 5 * time.Second
	defaultDefaultChannel = "general"
	defaultPort           = 8080
)

// Organization describes the workspace.
type Organization struct {
	// Name is the team name.
	Name string `json:"name"`

	// LogoURL is the 132px team icon. Empty while the team uses Slack's
	// default placeholder icon.
	LogoURL string `json:"logo_url,omitempty"`
}

// MemberStats holds the member counts of the default channel.
type MemberStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// WorkspacePoller tracks the member statistics of a Slack workspace.
//
// WorkspacePoller resolves the workspace's channels and team metadata once,
// then repeatedly reads the member count of the default channel and notifies
// subscribers of what it observed. It is created using [New] and started with
// [WorkspacePoller.Start].
//
// The typical lifecycle is:
//
//	wp, err := slackpulse.New("myteam", os.Getenv("SLACK_TOKEN"))
//	if err != nil {
//	    slog.Error("failed to create poller", "error", err)
//	    os.Exit(1)
//	}
//
//	wp.Subscribe(func(ev slackpulse.Event) {
//	    fmt.Println(ev.Stats.Total)
//	}, slackpulse.EventData)
//
//	wp.Start(ctx)
//	<-wp.Done()
//
// Successful fetches are spaced exactly by the poll interval. Failed fetches
// are retried with exponential backoff; the poller never gives up once
// initialized. A failed initialization ends the poller: [WorkspacePoller.Done]
// closes and [WorkspacePoller.Err] reports why.
//
// All query methods are safe for concurrent use.
type WorkspacePoller struct {
	host           string
	token          string
	interval       time.Duration
	defaultChannel string
	port           int
	logger         *slog.Logger
	clock          quartz.Clock

	bus        *eventBus
	backoff    *poller.Backoff
	httpClient *poller.Client
	api        slackapi.Service
	counter    ActiveCounter

	mu               sync.RWMutex
	ready            bool
	org              Organization
	channelsByName   map[string]slackapi.Channel
	defaultChannelID string
	stats            *MemberStats

	lifeMu  sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// New creates a new [WorkspacePoller] for the workspace at
// https://<host>.slack.com using token for every API call.
//
// Options have sensible defaults:
//   - Poll interval: 5 seconds
//   - Max backoff: 30 minutes, reset after a success
//   - Request timeout: 10 seconds
//   - Default channel: general
//   - Active members: [ActivePlaceholder]
//
// Returns an error if host or token is empty or if any option is invalid.
// No request is made until [WorkspacePoller.Start] is called.
//
// Example:
//
//	wp, err := slackpulse.New("myteam", token,
//	    slackpulse.WithPollInterval(10*time.Second),
//	    slackpulse.WithLogger(logger),
//	)
func New(host, token string, opts ...Option) (*WorkspacePoller, error) {
	if host == "" {
		return nil, ErrHostRequired
	}
	if token == "" {
		return nil, ErrTokenRequired
	}

	cfg := &pollerConfig{
		pollInterval:   defaultPollInterval,
		maxBackoff:     poller.DefaultMaxBackoff,
		resetBackoff:   true,
		requestTimeout: poller.DefaultRequestTimeout,
		defaultChannel: defaultDefaultChannel,
		port:           defaultPort,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, goerr.Wrap(err, "invalid option", goerr.V(WorkspaceKey, host))
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("workspace", host)

	clock := cfg.clock
	if clock == nil {
		clock = quartz.NewReal()
	}

	apiURL := cfg.apiURL
	if apiURL == "" {
		apiURL = slackapi.WorkspaceAPIURL(host)
	}

	httpClient := poller.NewClient(cfg.requestTimeout, logger)
	api, err := slackapi.New(token,
		slackapi.WithAPIURL(apiURL),
		slackapi.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create slack client", goerr.V(WorkspaceKey, host))
	}

	var counter ActiveCounter = PlaceholderCounter{}
	switch {
	case cfg.counter != nil:
		counter = cfg.counter
	case cfg.presence != nil:
		counter = &presenceCounter{
			api:         api,
			maxMembers:  cfg.presence.maxMembers,
			concurrency: cfg.presence.concurrency,
		}
	}

	wp := &WorkspacePoller{
		host:           host,
		token:          token,
		interval:       cfg.pollInterval,
		defaultChannel: cfg.defaultChannel,
		port:           cfg.port,
		logger:         logger,
		clock:          clock,
		bus:            newEventBus(logger),
		backoff:        poller.NewBackoff(cfg.pollInterval, cfg.maxBackoff, cfg.resetBackoff),
		httpClient:     httpClient,
		api:            api,
		counter:        counter,
		done:           make(chan struct{}),
	}

	for _, reg := range cfg.listeners {
		wp.bus.subscribe(reg.listener, reg.types...)
	}

	return wp, nil
}

// Start initializes the poller and begins polling in a background goroutine.
//
// Start never blocks. The workspace's channels and team are resolved first;
// the first fetch follows immediately after. Cancel ctx or call
// [WorkspacePoller.Stop] to end polling. Calling Start more than once has no
// effect.
func (wp *WorkspacePoller) Start(ctx context.Context) {
	wp.lifeMu.Lock()
	defer wp.lifeMu.Unlock()

	if wp.started {
		return
	}
	wp.started = true

	ctx, wp.cancel = context.WithCancel(ctx)
	go wp.run(ctx)
}

// Stop cancels the pending fetch or timer and waits for the poll goroutine
// to exit. Safe to call before [WorkspacePoller.Start] and more than once.
// Stop must not be called from a [Listener]; use the context instead.
func (wp *WorkspacePoller) Stop() {
	wp.lifeMu.Lock()
	if !wp.started {
		wp.started = true
		wp.cancel = func() {}
		close(wp.done)
		wp.httpClient.Close()
		wp.lifeMu.Unlock()
		return
	}
	cancel := wp.cancel
	wp.lifeMu.Unlock()

	cancel()
	<-wp.done
}

// Done returns a channel that is closed once the poller has stopped,
// either because its context ended or because initialization failed.
func (wp *WorkspacePoller) Done() <-chan struct{} {
	return wp.done
}

// Err returns the initialization error once [WorkspacePoller.Done] is
// closed. It returns nil when polling ended through cancellation.
func (wp *WorkspacePoller) Err() error {
	wp.lifeMu.Lock()
	defer wp.lifeMu.Unlock()
	return wp.err
}

// Subscribe registers a listener. With no types the listener receives every
// event; otherwise only events of the given types.
//
// Listeners run synchronously on the poll goroutine in registration order.
// A panicking listener is logged and skipped.
func (wp *WorkspacePoller) Subscribe(l Listener, types ...EventType) Subscription {
	return wp.bus.subscribe(l, types...)
}

// Unsubscribe removes a listener. It reports whether the subscription was
// registered.
func (wp *WorkspacePoller) Unsubscribe(s Subscription) bool {
	return wp.bus.unsubscribe(s)
}

// Host returns the workspace subdomain.
func (wp *WorkspacePoller) Host() string {
	return wp.host
}

// Port returns the configured HTTP port used by [WorkspacePoller.Serve].
func (wp *WorkspacePoller) Port() int {
	return wp.port
}

// PollInterval returns the base polling interval.
func (wp *WorkspacePoller) PollInterval() time.Duration {
	return wp.interval
}

// Ready reports whether at least one fetch has succeeded.
func (wp *WorkspacePoller) Ready() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.ready
}

// Organization returns the workspace metadata. It is the zero value until
// initialization has succeeded.
func (wp *WorkspacePoller) Organization() Organization {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.org
}

// Stats returns the member counts of the last successful fetch. The second
// return value is false until the first fetch has succeeded.
func (wp *WorkspacePoller) Stats() (MemberStats, bool) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stats == nil {
		return MemberStats{}, false
	}
	return *wp.stats, true
}

// ChannelID returns the ID of the channel with the given name. The second
// return value is false for unknown names and before initialization.
func (wp *WorkspacePoller) ChannelID(name string) (string, bool) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	ch, ok := wp.channelsByName[name]
	return ch.ID, ok
}

// DefaultChannelID returns the ID of the channel whose members are counted.
func (wp *WorkspacePoller) DefaultChannelID() string {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.defaultChannelID
}

func (wp *WorkspacePoller) run(ctx context.Context) {
	defer close(wp.done)
	defer wp.httpClient.Close()

	if err := wp.init(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		wp.logger.Error("initialization failed", "error", err.Error())
		wp.lifeMu.Lock()
		wp.err = err
		wp.lifeMu.Unlock()
		wp.emit(Event{Type: EventError, Err: err, Init: true})
		return
	}

	scheduler := poller.NewScheduler(wp.fetch, wp.backoff, wp.clock, wp.logger)
	scheduler.SetRetryHint(slackapi.RetryAfter)
	scheduler.OnScheduled(wp.onScheduled)
	scheduler.Run(ctx)

	wp.logger.Info("poller stopped")
}

// init resolves the channel index and team metadata.
func (wp *WorkspacePoller) init(ctx context.Context) error {
	var (
		channels []slackapi.Channel
		team     *slackapi.Team
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		channels, err = wp.api.ListChannels(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		team, err = wp.api.TeamInfo(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return goerr.Wrap(err, "failed to initialize workspace", goerr.V(WorkspaceKey, wp.host))
	}

	byName := make(map[string]slackapi.Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name] = ch
	}

	def, ok := byName[wp.defaultChannel]
	if !ok {
		return goerr.Wrap(ErrChannelNotFound,
			fmt.Sprintf("'#%s' channel was not found", wp.defaultChannel),
			goerr.V(WorkspaceKey, wp.host),
			goerr.V(ChannelKey, wp.defaultChannel),
		)
	}

	org := Organization{Name: team.Name}
	if !team.Icon.IsDefault {
		org.LogoURL = team.Icon.Image132
	}

	wp.mu.Lock()
	wp.channelsByName = byName
	wp.defaultChannelID = def.ID
	wp.org = org
	wp.mu.Unlock()

	wp.logger.Info("workspace initialized",
		"organization", org.Name,
		"channels", len(byName),
		"channel", wp.defaultChannel,
		"channel_id", def.ID,
	)
	return nil
}

// fetch is the scheduler job: one read of the default channel.
func (wp *WorkspacePoller) fetch(ctx context.Context) error {
	wp.emit(Event{Type: EventFetch})

	channelID := wp.DefaultChannelID()
	wp.logger.Debug("fetching member stats", "channel_id", channelID)

	stats, err := wp.request(ctx, channelID)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		wp.emit(Event{Type: EventError, Err: err})
		return err
	}

	wp.onResponse(stats)
	return nil
}

// request reads the channel and counts active members. A panic in the
// counter is reported as a failed fetch.
func (wp *WorkspacePoller) request(ctx context.Context, channelID string) (stats MemberStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("fetch panicked",
				"channel_id", channelID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			stats = MemberStats{}
			err = goerr.New("fetch panicked",
				goerr.V(ChannelKey, channelID),
				goerr.V("panic", fmt.Sprint(r)),
			)
		}
	}()

	ch, err := wp.api.ChannelInfo(ctx, channelID)
	if err != nil {
		return MemberStats{}, goerr.Wrap(err, "fetch failed", goerr.V(ChannelKey, channelID))
	}

	active, err := wp.counter.CountActive(ctx, channelID, ch.NumMembers)
	if err != nil {
		return MemberStats{}, goerr.Wrap(err, "fetch failed", goerr.V(ChannelKey, channelID))
	}

	return MemberStats{Total: ch.NumMembers, Active: active}, nil
}

// onResponse stores a successful result and emits change and ready events.
// The data event follows once the next fetch is scheduled.
func (wp *WorkspacePoller) onResponse(stats MemberStats) {
	wp.mu.Lock()
	prev := wp.stats
	first := !wp.ready
	wp.stats = &stats
	wp.ready = true
	wp.mu.Unlock()

	if prev != nil {
		if prev.Total != stats.Total {
			wp.logger.Info("member count changed", "field", FieldTotal.String(), "from", prev.Total, "to", stats.Total)
			wp.emit(Event{Type: EventChange, Field: FieldTotal, Value: stats.Total})
		}
		if prev.Active != stats.Active {
			wp.logger.Info("member count changed", "field", FieldActive.String(), "from", prev.Active, "to", stats.Active)
			wp.emit(Event{Type: EventChange, Field: FieldActive, Value: stats.Active})
		}
	}

	if first {
		wp.logger.Info("poller ready", "total", stats.Total, "active", stats.Active)
		wp.emit(Event{Type: EventReady, Stats: stats})
	}
}

// onScheduled runs once the timer for the next fetch is armed.
func (wp *WorkspacePoller) onScheduled(o poller.Outcome) {
	if o.Err != nil {
		wp.emit(Event{Type: EventRetry, Err: o.Err, Delay: o.Delay, Attempt: o.Attempt})
		return
	}

	stats, _ := wp.Stats()
	wp.emit(Event{Type: EventData, Stats: stats, Delay: o.Delay})
}

func (wp *WorkspacePoller) emit(ev Event) {
	ev.At = wp.clock.Now()
	wp.bus.emit(ev)
}
