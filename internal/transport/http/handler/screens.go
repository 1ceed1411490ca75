package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lostfound-sync/internal/application/feed"
	"github.com/lostfound-sync/internal/application/grouping"
	"github.com/lostfound-sync/internal/application/item"
	"github.com/lostfound-sync/internal/application/notification"
	"github.com/lostfound-sync/internal/application/visibility"
	"github.com/lostfound-sync/internal/domain"
	"github.com/lostfound-sync/internal/pkg/id"
	"github.com/lostfound-sync/internal/pkg/validate"
	"github.com/lostfound-sync/internal/transport/http/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// Client commands.
const (
	actionMarkRead    = "mark_read"
	actionMarkAllRead = "mark_all_read"
	actionRefresh     = "refresh"
	actionQuery       = "query"
)

// ScreenDeps is what a mounted screen needs from the backend.
type ScreenDeps struct {
	Notifications  notification.Store
	Items          item.Store
	Feed           feed.Transport
	Images         grouping.ImageResolver
	FetchLimit     int
	SweepInterval  time.Duration
	NearRadiusKm   float64
	AllowedOrigins []string
}

// ScreenHandler serves the WebSocket screen endpoints. One connection mounts exactly one screen
// and unmounts it on disconnect.
type ScreenHandler struct {
	deps     ScreenDeps
	upgrader websocket.Upgrader
}

func NewScreenHandler(deps ScreenDeps) *ScreenHandler {
	return &ScreenHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(deps.AllowedOrigins),
		},
	}
}

// command is one client message.
type command struct {
	Action string       `json:"action" validate:"required,oneof=mark_read mark_all_read refresh query"`
	ID     string       `json:"id,omitempty" validate:"required_if=Action mark_read"`
	Query  *queryParams `json:"query,omitempty"`
}

// queryParams mirrors the items endpoint query string.
type queryParams struct {
	Rare     *bool    `json:"rare,omitempty"`
	Status   []string `json:"status,omitempty" validate:"omitempty,dive,oneof=available claimed searching found resolved"`
	Category string   `json:"category,omitempty"`
	Origin   string   `json:"origin,omitempty" validate:"omitempty,oneof=found lost"`
	Lat      *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lon      *float64 `json:"lon,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Near     bool     `json:"near,omitempty"`
	RadiusKm float64  `json:"radius_km,omitempty" validate:"gte=0"`
}

// Notifications mounts the caller's notifications screen.
func (h *ScreenHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.UserID() == "" {
		httpError(w, domain.ErrUnauthorized)
		return
	}
	screen := notification.NewScreen(h.deps.Notifications, h.deps.Feed, grouping.New(h.deps.Images), notification.Options{
		UserID:        claims.UserID(),
		Limit:         h.deps.FetchLimit,
		SweepInterval: h.deps.SweepInterval,
	})
	h.serve(w, r, mounted{
		name:    frameNotifications,
		mount:   screen.Mount,
		unmount: screen.Unmount,
		updates: screen.Updates,
		frame:   func() any { return notificationsFrame(screen.Snapshot()) },
		dispatch: func(ctx context.Context, cmd command) error {
			switch cmd.Action {
			case actionMarkRead:
				return screen.MarkRead(ctx, cmd.ID)
			case actionMarkAllRead:
				return screen.MarkAllRead(ctx)
			case actionRefresh:
				return screen.Refresh(ctx)
			}
			return fmt.Errorf("%w: action %q not supported on this screen", domain.ErrBadRequest, cmd.Action)
		},
	})
}

// Items mounts the merged found/lost items screen configured by the query string.
func (h *ScreenHandler) Items(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.ClaimsFromContext(r.Context()); !ok {
		httpError(w, domain.ErrUnauthorized)
		return
	}
	params, err := parseQueryParams(r.URL.Query())
	if err != nil {
		httpError(w, err)
		return
	}
	q, err := h.toQuery(params)
	if err != nil {
		httpError(w, err)
		return
	}
	screen := item.NewScreen(h.deps.Items, h.deps.Feed, item.Options{Limit: h.deps.FetchLimit, Query: q})
	h.serve(w, r, mounted{
		name:    frameItems,
		mount:   screen.Mount,
		unmount: screen.Unmount,
		updates: screen.Updates,
		frame:   func() any { return itemsFrame(screen.Snapshot()) },
		dispatch: func(ctx context.Context, cmd command) error {
			switch cmd.Action {
			case actionRefresh:
				return screen.Refresh(ctx)
			case actionQuery:
				if cmd.Query == nil {
					return fmt.Errorf("%w: query is required", domain.ErrBadRequest)
				}
				if err := validate.Struct(cmd.Query); err != nil {
					return fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
				}
				q, err := h.toQuery(*cmd.Query)
				if err != nil {
					return err
				}
				return screen.SetQuery(ctx, q)
			}
			return fmt.Errorf("%w: action %q not supported on this screen", domain.ErrBadRequest, cmd.Action)
		},
	})
}

// mounted adapts either screen to the shared connection loop.
type mounted struct {
	name     string
	mount    func(context.Context) error
	unmount  func()
	updates  func() <-chan struct{}
	frame    func() any
	dispatch func(context.Context, command) error
}

func (h *ScreenHandler) serve(w http.ResponseWriter, r *http.Request, m mounted) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		slog.Warn("screen upgrade failed", "screen", m.name, "error", err)
		return
	}
	c := &conn{id: id.Prefixed("conn"), ws: ws}
	log := slog.With("conn", c.id, "screen", m.name)
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := m.mount(ctx); err != nil {
		log.Warn("screen mount failed", "error", err)
		c.close(err)
		return
	}
	log.Info("screen mounted")

	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		c.push(ctx, m.updates(), m.frame)
	}()

	c.read(ctx, log, m.dispatch)

	cancel()
	m.unmount()
	<-pushed
	c.close(nil)
	log.Info("screen unmounted")
}

// conn serializes writes to one socket. gorilla/websocket allows one concurrent writer.
type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// close sends a close frame whose code reflects err.
func (c *conn) close(err error) {
	code, text := websocket.CloseNormalClosure, ""
	if err != nil {
		code, text = closeCode(err), err.Error()
		_ = c.write(AckFrame{Type: frameError, Error: text, ErrorCode: statusFor(err)})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

// push writes a frame on every projection change until the screen is unmounted.
func (c *conn) push(ctx context.Context, updates <-chan struct{}, frame func() any) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := c.write(frame()); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// read dispatches client commands until the peer goes away. Every command is answered with an ack
// or an error frame; malformed commands do not end the connection.
func (c *conn) read(ctx context.Context, log *slog.Logger, dispatch func(context.Context, command) error) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("screen connection dropped", "error", err)
			}
			return
		}
		var cmd command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			_ = c.write(ack("", fmt.Errorf("%w: %v", domain.ErrBadRequest, err)))
			continue
		}
		if err := validate.Struct(cmd); err != nil {
			_ = c.write(ack(cmd.Action, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)))
			continue
		}
		err = dispatch(ctx, cmd)
		if err != nil && !errors.Is(err, domain.ErrMutation) {
			log.Warn("screen command failed", "action", cmd.Action, "error", err)
		}
		if werr := c.write(ack(cmd.Action, err)); werr != nil {
			return
		}
	}
}

func closeCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrBadRequest):
		return websocket.ClosePolicyViolation
	case errors.Is(err, domain.ErrConnection):
		return websocket.CloseTryAgainLater
	default:
		return websocket.CloseInternalServerErr
	}
}

// parseQueryParams reads rare, status (comma separated), category, origin, lat, lon, near and
// radius_km.
func parseQueryParams(v url.Values) (queryParams, error) {
	var p queryParams
	if s := v.Get("rare"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return p, fmt.Errorf("%w: rare must be a boolean", domain.ErrBadRequest)
		}
		p.Rare = &b
	}
	if s := v.Get("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			if st = strings.TrimSpace(st); st != "" {
				p.Status = append(p.Status, st)
			}
		}
	}
	p.Category = v.Get("category")
	p.Origin = v.Get("origin")
	for _, f := range []struct {
		key string
		dst **float64
	}{{"lat", &p.Lat}, {"lon", &p.Lon}} {
		s := v.Get(f.key)
		if s == "" {
			continue
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, fmt.Errorf("%w: %s must be a number", domain.ErrBadRequest, f.key)
		}
		*f.dst = &x
	}
	if s := v.Get("near"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return p, fmt.Errorf("%w: near must be a boolean", domain.ErrBadRequest)
		}
		p.Near = b
	}
	if s := v.Get("radius_km"); s != "" {
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, fmt.Errorf("%w: radius_km must be a number", domain.ErrBadRequest)
		}
		p.RadiusKm = x
	}
	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	return p, nil
}

func (h *ScreenHandler) toQuery(p queryParams) (visibility.Query, error) {
	q := visibility.Query{Rare: p.Rare, Statuses: p.Status, Category: p.Category, Origin: domain.Origin(p.Origin)}
	if (p.Lat == nil) != (p.Lon == nil) {
		return q, fmt.Errorf("%w: lat and lon must be given together", domain.ErrBadRequest)
	}
	if p.Lat != nil {
		q.Near.Ref = &domain.Location{Lat: *p.Lat, Lon: *p.Lon}
	}
	if p.Near {
		if q.Near.Ref == nil {
			return q, fmt.Errorf("%w: near requires lat and lon", domain.ErrBadRequest)
		}
		q.Near.NearMe = true
		q.Near.RadiusKm = p.RadiusKm
		if q.Near.RadiusKm == 0 {
			q.Near.RadiusKm = h.deps.NearRadiusKm
		}
	}
	return q, nil
}

// originChecker accepts requests without an Origin header (native clients) and origins on the
// allow list. A "*" entry allows every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
