// Package slacktest provides an in-process fake of the Slack Web API methods
// slackpulse calls.
//
// The fake is an http.Handler, so it can back an httptest.Server in tests or
// a real listener in the demo mock server. Point a client at
// "<base URL>/api/".
package slacktest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Method names served by the fake.
const (
	MethodConversationsList    = "conversations.list"
	MethodTeamInfo             = "team.info"
	MethodConversationsInfo    = "conversations.info"
	MethodConversationsMembers = "conversations.members"
	MethodUsersGetPresence     = "users.getPresence"
)

type channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsChannel  bool   `json:"is_channel"`
	IsGeneral  bool   `json:"is_general"`
	IsArchived bool   `json:"is_archived"`
	NumMembers int    `json:"num_members"`
	Topic      struct {
		Value string `json:"value"`
	} `json:"topic"`
	Purpose struct {
		Value string `json:"value"`
	} `json:"purpose"`
}

type team struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Domain string         `json:"domain"`
	Icon   map[string]any `json:"icon"`
}

// failure is a scripted non-OK answer for the next call of a method
type failure struct {
	status     int
	retryAfter int
	slackError string
}

// Workspace is a fake Slack workspace served over HTTP.
//
// All setters are safe to call while requests are in flight.
type Workspace struct {
	token string

	mu       sync.Mutex
	channels []*channel
	members  map[string][]string
	presence map[string]string
	team     *team
	failures map[string][]failure
	calls    map[string]int
}

// NewWorkspace creates a fake workspace that accepts the given token.
//
// It starts with a team called "Acme" using the default icon and no channels.
func NewWorkspace(token string) *Workspace {
	return &Workspace{
		token:    token,
		members:  make(map[string][]string),
		presence: make(map[string]string),
		team: &team{
			ID:     "T0001",
			Name:   "Acme",
			Domain: "acme",
			Icon:   map[string]any{"image_132": "https://a.slack-edge.com/default_132.png", "image_default": true},
		},
		failures: make(map[string][]failure),
		calls:    make(map[string]int),
	}
}

// AddChannel adds a public channel with the given member count.
func (w *Workspace) AddChannel(id, name string, numMembers int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.channels = append(w.channels, &channel{
		ID:         id,
		Name:       name,
		IsChannel:  true,
		IsGeneral:  name == "general",
		NumMembers: numMembers,
	})
}

// SetNumMembers changes the member count reported for a channel.
func (w *Workspace) SetNumMembers(id string, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.channels {
		if ch.ID == id {
			ch.NumMembers = n
		}
	}
}

// NumMembers returns the member count currently reported for a channel.
func (w *Workspace) NumMembers(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.channels {
		if ch.ID == id {
			return ch.NumMembers
		}
	}
	return 0
}

// SetMembers sets the member list of a channel along with each member's
// presence. The channel's member count is updated to match.
func (w *Workspace) SetMembers(id string, presence map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(presence))
	for user, p := range presence {
		ids = append(ids, user)
		w.presence[user] = p
	}
	w.members[id] = ids
	for _, ch := range w.channels {
		if ch.ID == id {
			ch.NumMembers = len(ids)
		}
	}
}

// SetTeam replaces the team metadata returned by team.info.
func (w *Workspace) SetTeam(name, image132 string, isDefaultIcon bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.team = &team{
		ID:     "T0001",
		Name:   name,
		Domain: strings.ToLower(name),
		Icon:   map[string]any{"image_132": image132, "image_default": isDefaultIcon},
	}
}

// RemoveTeam makes team.info answer ok without a team object.
func (w *Workspace) RemoveTeam() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.team = nil
}

// FailNext makes the next n calls of method answer with an HTTP status code.
func (w *Workspace) FailNext(method string, n, status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := 0; i < n; i++ {
		w.failures[method] = append(w.failures[method], failure{status: status})
	}
}

// RateLimitNext makes the next call of method answer 429 with Retry-After.
func (w *Workspace) RateLimitNext(method string, retryAfterSeconds int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[method] = append(w.failures[method], failure{status: http.StatusTooManyRequests, retryAfter: retryAfterSeconds})
}

// ErrorNext makes the next call of method answer ok=false with a Slack error code.
func (w *Workspace) ErrorNext(method, slackError string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[method] = append(w.failures[method], failure{status: http.StatusOK, slackError: slackError})
}

// Calls returns how many times method was requested.
func (w *Workspace) Calls(method string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[method]
}

// ServeHTTP implements http.Handler.
func (w *Workspace) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/api/")
	if err := r.ParseForm(); err != nil {
		http.Error(rw, "bad form", http.StatusBadRequest)
		return
	}

	w.mu.Lock()
	w.calls[method]++
	var scripted *failure
	if queue := w.failures[method]; len(queue) > 0 {
		scripted = &queue[0]
		w.failures[method] = queue[1:]
	}
	w.mu.Unlock()

	if scripted != nil {
		if scripted.retryAfter > 0 {
			rw.Header().Set("Retry-After", strconv.Itoa(scripted.retryAfter))
		}
		if scripted.slackError != "" {
			writeJSON(rw, map[string]any{"ok": false, "error": scripted.slackError})
			return
		}
		rw.WriteHeader(scripted.status)
		return
	}

	if !w.authorized(r) {
		writeJSON(rw, map[string]any{"ok": false, "error": "invalid_auth"})
		return
	}

	switch method {
	case MethodConversationsList:
		w.conversationsList(rw, r)
	case MethodTeamInfo:
		w.teamInfo(rw)
	case MethodConversationsInfo:
		w.conversationsInfo(rw, r)
	case MethodConversationsMembers:
		w.conversationsMembers(rw, r)
	case MethodUsersGetPresence:
		w.usersGetPresence(rw, r)
	default:
		writeJSON(rw, map[string]any{"ok": false, "error": "unknown_method"})
	}
}

func (w *Workspace) authorized(r *http.Request) bool {
	if r.Header.Get("Authorization") == "Bearer "+w.token {
		return true
	}
	return r.Form.Get("token") == w.token
}

func (w *Workspace) conversationsList(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	all := make([]channel, 0, len(w.channels))
	for _, ch := range w.channels {
		if r.Form.Get("exclude_archived") == "true" && ch.IsArchived {
			continue
		}
		all = append(all, *ch)
	}
	w.mu.Unlock()

	page, next := paginate(len(all), r.Form.Get("cursor"), r.Form.Get("limit"))
	writeJSON(rw, map[string]any{
		"ok":                true,
		"channels":          all[page.start:page.end],
		"response_metadata": map[string]any{"next_cursor": next},
	})
}

func (w *Workspace) teamInfo(rw http.ResponseWriter) {
	w.mu.Lock()
	t := w.team
	w.mu.Unlock()

	if t == nil {
		writeJSON(rw, map[string]any{"ok": true})
		return
	}
	writeJSON(rw, map[string]any{"ok": true, "team": t})
}

func (w *Workspace) conversationsInfo(rw http.ResponseWriter, r *http.Request) {
	id := r.Form.Get("channel")

	w.mu.Lock()
	var found *channel
	for _, ch := range w.channels {
		if ch.ID == id {
			c := *ch
			found = &c
		}
	}
	w.mu.Unlock()

	if found == nil {
		writeJSON(rw, map[string]any{"ok": false, "error": "channel_not_found"})
		return
	}
	if r.Form.Get("include_num_members") != "true" {
		found.NumMembers = 0
	}
	writeJSON(rw, map[string]any{"ok": true, "channel": found})
}

func (w *Workspace) conversationsMembers(rw http.ResponseWriter, r *http.Request) {
	id := r.Form.Get("channel")

	w.mu.Lock()
	ids := append([]string(nil), w.members[id]...)
	w.mu.Unlock()

	page, next := paginate(len(ids), r.Form.Get("cursor"), r.Form.Get("limit"))
	writeJSON(rw, map[string]any{
		"ok":                true,
		"members":           ids[page.start:page.end],
		"response_metadata": map[string]any{"next_cursor": next},
	})
}

func (w *Workspace) usersGetPresence(rw http.ResponseWriter, r *http.Request) {
	user := r.Form.Get("user")

	w.mu.Lock()
	p, ok := w.presence[user]
	w.mu.Unlock()

	if !ok {
		writeJSON(rw, map[string]any{"ok": false, "error": "user_not_found"})
		return
	}
	writeJSON(rw, map[string]any{"ok": true, "presence": p, "online": p == "active"})
}

type pageRange struct {
	start, end int
}

// paginate turns a numeric cursor and limit into a slice range and the next cursor.
func paginate(n int, cursor, limit string) (pageRange, string) {
	start, _ := strconv.Atoi(cursor)
	if start < 0 || start > n {
		start = n
	}
	size, err := strconv.Atoi(limit)
	if err != nil || size <= 0 {
		size = n
	}
	end := start + size
	if end >= n {
		return pageRange{start, n}, ""
	}
	return pageRange{start, end}, strconv.Itoa(end)
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}
