// Package realtime streams owner dashboards over websockets.
package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/tableside-backend/api/middleware"
	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	pkgrealtime "github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	EventOrdersSnapshot    = "orders.snapshot"
	EventWaiterCallChanged = "waiter_calls.changed"

	writeWait      = 10 * time.Second
	maxClientFrame = 4096
)

// Message is one frame sent to the dashboard.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type boardRunner interface {
	Run(ctx context.Context, ownerID uuid.UUID, emit func([]models.Order) error) error
}

type ownerGuard interface {
	RequireOwner(ctx context.Context, ownerID, restaurantID uuid.UUID) (*models.Restaurant, error)
}

type subscriber interface {
	Subscribe(ctx context.Context, channel string) (pkgrealtime.Subscription, error)
}

// Params configure the websocket endpoints.
type Params struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	Logger         *logger.Logger
}

// NewUpgrader accepts same-host requests, requests without an Origin header
// and the configured CORS origins.
func NewUpgrader(allowed []string) websocket.Upgrader {
	set := map[string]struct{}{}
	wildcard := false
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			wildcard = true
		}
		if origin != "" {
			set[strings.ToLower(origin)] = struct{}{}
		}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			if _, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]; ok {
				return true
			}
			return strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"), r.Host)
		},
	}
}

// OrdersBoard streams a full order snapshot on connect and after every change.
func OrdersBoard(board boardRunner, params Params) http.HandlerFunc {
	upgrader := NewUpgrader(params.AllowedOrigins)
	logg := params.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := middleware.OwnerIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "realtime.upgrade_failed")
			return
		}
		stream := newStream(r.Context(), conn, params.PingInterval, logg)
		defer stream.close()

		err = board.Run(stream.ctx, ownerID, func(list []models.Order) error {
			if list == nil {
				list = []models.Order{}
			}
			return stream.send(Message{Event: EventOrdersSnapshot, Data: list})
		})
		stream.finish(err)
	}
}

// WaiterCalls forwards waiter-call change events of one restaurant. Clients
// refetch the queue when an event arrives.
func WaiterCalls(restaurants ownerGuard, hub subscriber, params Params) http.HandlerFunc {
	upgrader := NewUpgrader(params.AllowedOrigins)
	logg := params.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := middleware.OwnerIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}
		restaurantID, err := validators.ParseUUIDParam(r, "restaurantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := restaurants.RequireOwner(r.Context(), ownerID, restaurantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := hub.Subscribe(r.Context(), pkgrealtime.RestaurantWaiterCallsChannel(restaurantID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe waiter calls"))
			return
		}
		defer sub.Close()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "realtime.upgrade_failed")
			return
		}
		stream := newStream(r.Context(), conn, params.PingInterval, logg)
		defer stream.close()

		for {
			select {
			case <-stream.ctx.Done():
				stream.finish(stream.ctx.Err())
				return
			case event, ok := <-sub.Events():
				if !ok {
					stream.finish(pkgerrors.New(pkgerrors.CodeDependency, "waiter call subscription closed"))
					return
				}
				if err := stream.send(Message{Event: EventWaiterCallChanged, Data: event}); err != nil {
					stream.finish(err)
					return
				}
			}
		}
	}
}

// stream serializes writes to one connection and keeps it alive with pings.
// The context ends when the client goes away.
type stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
	logg   *logger.Logger
	mu     sync.Mutex
}

func newStream(parent context.Context, conn *websocket.Conn, ping time.Duration, logg *logger.Logger) *stream {
	ctx, cancel := context.WithCancel(parent)
	s := &stream{ctx: ctx, cancel: cancel, conn: conn, logg: logg}

	conn.SetReadLimit(maxClientFrame)
	if ping > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(2 * ping))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * ping))
		})
	}

	go s.readLoop()
	if ping > 0 {
		go s.pingLoop(ping)
	}
	return s
}

// readLoop drains client frames; dashboards never send anything we act on.
func (s *stream) readLoop() {
	defer s.cancel()
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

func (s *stream) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.mu.Unlock()
			if err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (s *stream) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// finish logs why the stream ended. A client disconnect is not an error.
func (s *stream) finish(err error) {
	if err == nil || s.ctx.Err() != nil {
		s.logg.Debug(s.ctx, "realtime.stream_closed")
		return
	}
	s.logg.Warn(s.logg.WithField(s.ctx, "error", err.Error()), "realtime.stream_failed")
	s.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stream ended"),
		time.Now().Add(writeWait))
	s.mu.Unlock()
}

func (s *stream) close() {
	s.cancel()
	_ = s.conn.Close()
}
