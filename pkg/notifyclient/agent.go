// Package notifyclient keeps a live view of one recipient's notification
// mailbox: it seeds the view from the mailbox API, then follows pushes on the
// websocket channel until its context ends.
package notifyclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/NordCoder/Taskboard/internal/obs/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Joined
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Joined:
		return "joined"
	default:
		return "disconnected"
	}
}

const (
	DefaultWindow = 10
	channelPath   = "/api/v1/ws"
	leaveTimeout  = time.Second
)

type Config struct {
	BaseURL string
	Token   string
	// Recipient to join. Empty means the identity the server bound the
	// channel to.
	Recipient string
	Window    int

	// Reconnect keeps the agent running across dropped channels. Each new
	// session re-lists the mailbox; missed pushes are not replayed.
	Reconnect bool
	Backoff   retry.ExpoJitter

	HTTPClient *http.Client
	Logger     *zap.Logger

	OnPush  func(Notification)
	OnState func(State)
}

// View is a copy of the agent's local state.
type View struct {
	State         State
	Recipient     string
	Notifications []Notification
	UnreadCount   int64
}

type Agent struct {
	cfg Config
	api *API
	log *zap.Logger
	box *mailbox

	mu        sync.Mutex
	state     State
	recipient string
}

func New(cfg Config) (*Agent, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("notifyclient: base url is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = retry.ExpoJitter{Base: 500 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		cfg:       cfg,
		api:       NewAPI(cfg.BaseURL, cfg.Token, cfg.HTTPClient),
		log:       log.With(zap.String("component", "notifyclient")),
		box:       newMailbox(cfg.Window),
		recipient: strings.TrimSpace(cfg.Recipient),
	}, nil
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) Snapshot() View {
	items, unread := a.box.snapshot()
	a.mu.Lock()
	defer a.mu.Unlock()
	return View{State: a.state, Recipient: a.recipient, Notifications: items, UnreadCount: unread}
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	changed := a.state != s
	a.state = s
	a.mu.Unlock()
	if changed && a.cfg.OnState != nil {
		a.cfg.OnState(s)
	}
}

// Run holds a channel open until ctx ends. Without Reconnect it returns the
// first session's error; unauthorized and forbidden errors always end it.
func (a *Agent) Run(ctx context.Context) error {
	attempt := 0
	for {
		joined, err := a.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !a.cfg.Reconnect || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
			return err
		}
		if joined {
			attempt = 0
		}
		wait := a.cfg.Backoff.Next(attempt)
		attempt++
		a.log.Warn("channel lost, reconnecting", zap.Error(err), zap.Duration("in", wait))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Refresh re-seeds the local view from the mailbox API.
func (a *Agent) Refresh(ctx context.Context) error {
	page, err := a.api.List(ctx, a.cfg.Window, 0)
	if err != nil {
		return err
	}
	a.box.seed(page)
	return nil
}

// MarkRead marks id read on the server, then locally. An id the server does
// not know is dropped from the view and is not an error.
func (a *Agent) MarkRead(ctx context.Context, id string) error {
	err := a.api.MarkRead(ctx, id)
	if errors.Is(err, ErrNotFound) {
		a.box.remove(id)
		return nil
	}
	if err != nil {
		return err
	}
	if !a.box.markRead(id) {
		a.resyncUnread(ctx)
	}
	return nil
}

func (a *Agent) MarkAllRead(ctx context.Context) (int64, error) {
	n, err := a.api.MarkAllRead(ctx)
	if err != nil {
		return 0, err
	}
	a.box.markAllRead()
	return n, nil
}

func (a *Agent) Delete(ctx context.Context, id string) error {
	err := a.api.Delete(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if !a.box.remove(id) && err == nil {
		a.resyncUnread(ctx)
	}
	return nil
}

// resyncUnread refreshes the counter after a change to an entry outside the
// window, whose read state is unknown locally.
func (a *Agent) resyncUnread(ctx context.Context) {
	page, err := a.api.List(ctx, 1, 0)
	if err != nil {
		a.log.Debug("unread resync failed", zap.Error(err))
		return
	}
	a.box.setUnread(page.UnreadCount)
}

func (a *Agent) session(ctx context.Context) (joined bool, err error) {
	a.setState(Connecting)
	defer a.setState(Disconnected)

	if err := a.Refresh(ctx); err != nil {
		return false, fmt.Errorf("list: %w", err)
	}

	conn, err := a.dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer a.release(conn)

	joinID := uuid.NewString()
	a.mu.Lock()
	want := a.recipient
	a.mu.Unlock()
	if err := websocket.JSON.Send(conn, frame{Type: frameJoin, RequestID: joinID, Payload: mustJSON(joinPayload{Recipient: want})}); err != nil {
		return false, fmt.Errorf("join: %w", err)
	}

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if ctx.Err() != nil {
				return joined, nil
			}
			return joined, fmt.Errorf("read: %w", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			a.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}

		switch f.Type {
		case frameJoined:
			var p joinedPayload
			if json.Unmarshal(f.Payload, &p) != nil || p.Recipient == "" {
				continue
			}
			a.mu.Lock()
			if a.recipient == "" {
				a.recipient = p.Recipient
			}
			ok := a.recipient == p.Recipient
			a.mu.Unlock()
			if ok && !joined {
				joined = true
				a.setState(Joined)
			}
		case frameNotification:
			var n Notification
			if err := json.Unmarshal(f.Payload, &n); err != nil || n.ID == "" {
				a.log.Debug("ignoring malformed push", zap.Error(err))
				continue
			}
			if a.box.push(n) && a.cfg.OnPush != nil {
				a.cfg.OnPush(n)
			}
		case frameError:
			var p errorPayload
			_ = json.Unmarshal(f.Payload, &p)
			if f.RequestID == joinID {
				if p.Code == codeForbidden {
					return false, fmt.Errorf("%w: %s", ErrForbidden, p.Message)
				}
				return false, fmt.Errorf("join refused: %s %s", p.Code, p.Message)
			}
			a.log.Debug("server error frame", zap.String("code", p.Code), zap.String("message", p.Message))
		}
	}
}

// release sends leave and closes the connection. The write is bounded so a
// dead peer cannot hold the session open.
func (a *Agent) release(conn *websocket.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(leaveTimeout))
	_ = websocket.JSON.Send(conn, frame{Type: frameLeave})
	_ = conn.Close()
}

func (a *Agent) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	origin := u.Scheme + "://" + u.Host
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + channelPath

	wc, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, err
	}
	if a.cfg.Token != "" {
		wc.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}
	return wc.DialContext(ctx)
}
