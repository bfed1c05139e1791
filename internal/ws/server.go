package ws

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"qrpos-order-services/internal/auth"
	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/realtime"
	"qrpos-order-services/internal/services"
	"qrpos-order-services/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// OrderReader supplies the snapshot a client receives right after it
// subscribes.
type OrderReader interface {
	GetOrderByCode(ctx context.Context, outletID int64, code string) (services.OrderResult, error)
	KitchenBoard(ctx context.Context, outletID int64) (order.Board, error)
}

type Options struct {
	JWTSecret           string
	TrackingTokenSecret string
	HeartbeatInterval   time.Duration
}

// Server keeps the websocket rooms of this instance: one per outlet for
// POS and kitchen screens and one per order for customer tracking. It is a
// realtime sink; events pushed to it go to every client in the matching
// rooms.
type Server struct {
	logger  *zap.Logger
	orders  OrderReader
	opts    Options
	outlets *rooms
	tracked *rooms
}

func New(orders OrderReader, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &Server{
		logger:  logger,
		orders:  orders,
		opts:    opts,
		outlets: newRooms(),
		tracked: newRooms(),
	}
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) writeJSON(value any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(value)
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

type rooms struct {
	mu   sync.RWMutex
	subs map[string]map[*client]struct{}
}

func newRooms() *rooms {
	return &rooms{subs: make(map[string]map[*client]struct{})}
}

func (r *rooms) subscribe(key string, c *client) (unsubscribe func()) {
	r.mu.Lock()
	if r.subs[key] == nil {
		r.subs[key] = make(map[*client]struct{})
	}
	r.subs[key][c] = struct{}{}
	r.mu.Unlock()

	return func() { r.remove(key, c) }
}

func (r *rooms) remove(key string, c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clients := r.subs[key]
	delete(clients, c)
	if len(clients) == 0 {
		delete(r.subs, key)
	}
}

func (r *rooms) size(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[key])
}

// broadcast writes message to every client of the room. A client whose
// write fails is closed and dropped; its read loop then ends the handler.
func (r *rooms) broadcast(key string, message any) int {
	r.mu.RLock()
	clients := make([]*client, 0, len(r.subs[key]))
	for c := range r.subs[key] {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if err := c.writeJSON(message); err != nil {
			_ = c.conn.Close()
			r.remove(key, c)
			continue
		}
		delivered++
	}
	return delivered
}

func outletKey(outletID int64) string {
	return strconv.FormatInt(outletID, 10)
}

func orderKey(outletID int64, code string) string {
	return fmt.Sprintf("%d:%s", outletID, strings.ToUpper(code))
}

// Publish implements realtime.Sink. The frame carries the event only;
// clients refetch the order when they need its body.
func (s *Server) Publish(_ context.Context, evt realtime.Event) error {
	frame := map[string]any{"type": evt.Name, "data": evt}
	s.outlets.broadcast(outletKey(evt.OutletID), frame)
	if evt.OrderCode != "" {
		s.tracked.broadcast(orderKey(evt.OutletID, evt.OrderCode), frame)
	}
	return nil
}

// OutletWS serves GET /ws/outlets/{outletId}?token=<staff jwt>.
func (s *Server) OutletWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	claims, err := auth.VerifyAccessToken(bearerOrRaw(r.URL.Query().Get("token")), s.opts.JWTSecret)
	if err != nil || !claims.Role.Has(auth.PermKitchen) {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "unauthorized"})
		return
	}
	outletID, err := strconv.ParseInt(chi.URLParam(r, "outletId"), 10, 64)
	if err != nil || outletID != claims.OutletID {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "forbidden"})
		return
	}

	ctx := r.Context()
	c := &client{conn: conn}
	unsubscribe := s.outlets.subscribe(outletKey(outletID), c)
	defer unsubscribe()

	if board, err := s.orders.KitchenBoard(ctx, outletID); err == nil {
		_ = c.writeJSON(map[string]any{"type": "orders.state", "data": board})
	} else {
		s.logger.Warn("ws outlet snapshot failed", zap.Int64("outletId", outletID), zap.Error(err))
		_ = c.writeJSON(map[string]any{"type": "orders.refresh", "updatedAt": time.Now().UTC()})
	}

	s.serve(ctx, c)
}

// OrderWS serves GET /ws/public/orders/{orderCode}?outletId=&token=<tracking>.
func (s *Server) OrderWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	code := strings.TrimSpace(chi.URLParam(r, "orderCode"))
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	outletID, err := strconv.ParseInt(r.URL.Query().Get("outletId"), 10, 64)
	if code == "" || token == "" || err != nil {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "invalid request"})
		return
	}
	if !utils.VerifyOrderTrackingToken(s.opts.TrackingTokenSecret, token, outletID, code) {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "order not found"})
		return
	}

	ctx := r.Context()
	c := &client{conn: conn}
	unsubscribe := s.tracked.subscribe(orderKey(outletID, code), c)
	defer unsubscribe()

	current, err := s.orders.GetOrderByCode(ctx, outletID, code)
	if err != nil {
		_ = c.writeJSON(map[string]any{"type": "error", "message": "order not found"})
		return
	}
	_ = c.writeJSON(map[string]any{"type": "order.state", "data": current})

	s.serve(ctx, c)
}

// serve pings the client until it goes away or the request context ends.
func (s *Server) serve(ctx context.Context, c *client) {
	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, readErr := c.conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-clientClosed:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func bearerOrRaw(value string) string {
	if token := auth.ParseBearerToken(value); token != "" {
		return token
	}
	return strings.TrimSpace(value)
}
