// Package realtime serves the live notification channel over websockets.
package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/NordCoder/Taskboard/internal/broker"
	domainauth "github.com/NordCoder/Taskboard/internal/domain/auth"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/auth"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes = 4 << 10
	maxDecodeErrors      = 3
	maxFramesPerSecond   = 20
)

var (
	mConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections", Help: "Open websocket connections.",
	})
	mFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_frames_total", Help: "Frames received from clients.",
	}, []string{"type"})
	mUnauthorized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_unauthorized_total", Help: "Upgrade attempts without a valid identity.",
	})
)

type Config struct {
	ChannelBuffer int
}

type Handler struct {
	log      *zap.Logger
	broker   *broker.Broker
	verifier domainauth.Verifier
	cfg      Config
	ws       websocket.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHandler(log *zap.Logger, b *broker.Broker, v domainauth.Verifier, cfg Config) *Handler {
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 32
	}
	h := &Handler{
		log:      log.With(zap.String("component", "realtime")),
		broker:   b,
		verifier: v,
		cfg:      cfg,
		conns:    make(map[*websocket.Conn]struct{}),
	}
	h.ws = websocket.Server{
		// identity comes from the token, not the Origin header
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   h.serveConn,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uid, err := auth.Authenticate(r, h.verifier)
	if err != nil || strings.TrimSpace(uid) == "" {
		mUnauthorized.Inc()
		h.log.Debug("websocket unauthorized", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r = r.WithContext(auth.WithUserID(r.Context(), strings.TrimSpace(uid)))
	h.ws.ServeHTTP(w, r)
}

// CloseAll disconnects every open channel; each one unbinds on its way out.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		_ = c.Close()
	}
}

func (h *Handler) track(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	mConnections.Inc()
}

func (h *Handler) untrack(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	mConnections.Dec()
}

func (h *Handler) serveConn(conn *websocket.Conn) {
	conn.MaxPayloadBytes = maxFramePayloadBytes
	h.track(conn)
	defer h.untrack(conn)
	defer func() { _ = conn.Close() }()

	uid, _ := auth.UserIDFromCtx(conn.Request().Context())
	ch := newChannel(uuid.NewString(), uid, h.cfg.ChannelBuffer)
	p := &peer{conn: conn}
	log := h.log.With(zap.String("channel", ch.id), zap.String("user", uid))

	defer ch.close()
	if err := h.broker.Join(ch, uid); err != nil {
		_ = p.write(errorFrame("", CodeForbidden, err.Error()))
		return
	}
	defer h.broker.Leave(ch.id)

	if err := p.write(Frame{Type: FrameJoined, Payload: mustJSON(JoinedPayload{Recipient: uid, ChannelID: ch.id})}); err != nil {
		return
	}
	log.Debug("channel bound")

	go h.writeLoop(ch, p, conn, log)
	h.readLoop(ch, p, conn, uid)
	log.Debug("channel released")
}

func (h *Handler) writeLoop(ch *channel, p *peer, conn *websocket.Conn, log *zap.Logger) {
	for {
		select {
		case <-ch.done:
			return
		case f := <-ch.queue:
			if err := p.write(f); err != nil {
				log.Debug("push failed, closing channel", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

func (h *Handler) readLoop(ch *channel, p *peer, conn *websocket.Conn, uid string) {
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if !errors.Is(err, io.EOF) {
				h.log.Debug("channel read ended", zap.String("channel", ch.id), zap.Error(err))
			}
			return
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart, framesInWindow = now, 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = p.write(errorFrame("", CodeResourceExhausted, "rate limit exceeded"))
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			decodeErrors++
			_ = p.write(errorFrame("", CodeInvalidArgument, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrors {
				return
			}
			continue
		}
		decodeErrors = 0
		mFrames.WithLabelValues(f.Type).Inc()

		switch f.Type {
		case FrameJoin:
			h.handleJoin(ch, p, uid, f)
		case FrameLeave:
			return
		case FramePing:
			_ = p.write(Frame{Type: FramePong, RequestID: f.RequestID})
		default:
			_ = p.write(errorFrame(f.RequestID, CodeInvalidArgument, "unsupported frame type"))
		}
	}
}

// handleJoin re-confirms the binding. A channel may only ever be bound to the
// identity it authenticated as; other recipients are refused and the current
// binding stays as it is.
func (h *Handler) handleJoin(ch *channel, p *peer, uid string, f Frame) {
	var payload JoinPayload
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			_ = p.write(errorFrame(f.RequestID, CodeInvalidArgument, "invalid join payload"))
			return
		}
	}
	recipient := strings.TrimSpace(payload.Recipient)
	if recipient == "" {
		recipient = uid
	}
	if err := h.broker.Join(ch, recipient); err != nil {
		_ = p.write(errorFrame(f.RequestID, CodeForbidden, "recipient does not match the authenticated identity"))
		return
	}
	_ = p.write(Frame{
		Type:      FrameJoined,
		RequestID: f.RequestID,
		Payload:   mustJSON(JoinedPayload{Recipient: recipient, ChannelID: ch.id}),
	})
}
