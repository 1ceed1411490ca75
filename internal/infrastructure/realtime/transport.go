// Package realtime implements the change feed over Supabase Realtime's Phoenix channel protocol.
package realtime

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
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lostfound-sync/internal/application/feed"
	"github.com/lostfound-sync/internal/domain"
)

const (
	defaultHeartbeat = 25 * time.Second
	joinTimeout      = 10 * time.Second
	writeWait        = 10 * time.Second
	schemaPublic     = "public"
)

// Transport opens one socket per channel, so closing a screen's subscription never affects
// another screen.
type Transport struct {
	endpoint  string
	apiKey    string
	dialer    *websocket.Dialer
	heartbeat time.Duration
}

// NewTransport targets the project at baseURL ("https://<ref>.supabase.co"). The key is sent as
// apikey and as the channel access token.
func NewTransport(baseURL, apiKey string) (*Transport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse supabase url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path += "/realtime/v1/websocket"
	q := u.Query()
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	return &Transport{
		endpoint:  u.String(),
		apiKey:    apiKey,
		dialer:    websocket.DefaultDialer,
		heartbeat: defaultHeartbeat,
	}, nil
}

// WithHeartbeat overrides the heartbeat period.
func (t *Transport) WithHeartbeat(d time.Duration) *Transport {
	if d > 0 {
		t.heartbeat = d
	}
	return t
}

func (t *Transport) Open(ctx context.Context, resource, filter string, sink feed.Sink) (feed.Channel, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.endpoint, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	c := &channel{
		conn:  conn,
		topic: "realtime:" + schemaPublic + ":" + resource,
		sink:  sink,
		done:  make(chan struct{}),
	}
	joinRef := c.nextRef()
	payload, _ := json.Marshal(joinPayload{
		Config: joinConfig{PostgresChanges: []postgresChange{{
			Event: "*", Schema: schemaPublic, Table: resource, Filter: filter,
		}}},
		AccessToken: t.apiKey,
	})
	if err := c.write(message{Topic: c.topic, Event: eventJoin, Payload: payload, Ref: &joinRef, JoinRef: &joinRef}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}
	if err := c.awaitJoin(ctx, joinRef); err != nil {
		conn.Close()
		return nil, err
	}
	c.joinRef = joinRef

	go c.heartbeatPump(t.heartbeat)
	go c.readPump()
	slog.Info("realtime channel joined", "topic", c.topic, "filter", filter)
	return c, nil
}

type channel struct {
	conn    *websocket.Conn
	topic   string
	joinRef string
	sink    feed.Sink
	ref     atomic.Uint64

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
	closing atomic.Bool
}

func (c *channel) nextRef() string { return strconv.FormatUint(c.ref.Add(1), 10) }

func (c *channel) write(m message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(m)
}

// awaitJoin reads until the reply to the join arrives. Changes cannot arrive before it.
func (c *channel) awaitJoin(ctx context.Context, ref string) error {
	deadline := time.Now().Add(joinTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})
	for {
		var m message
		if err := c.conn.ReadJSON(&m); err != nil {
			return fmt.Errorf("await join: %w", err)
		}
		if m.Event != eventReply || m.Ref == nil || *m.Ref != ref {
			continue
		}
		var r replyPayload
		if err := json.Unmarshal(m.Payload, &r); err != nil {
			return fmt.Errorf("decode join reply: %w", err)
		}
		if r.Status != "ok" {
			return fmt.Errorf("join %s rejected: %s", c.topic, strings.TrimSpace(string(r.Response)))
		}
		return nil
	}
}

func (c *channel) heartbeatPump(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ref := c.nextRef()
			if err := c.write(message{Topic: topicPhoenix, Event: eventHeartbeat, Payload: json.RawMessage(`{}`), Ref: &ref}); err != nil {
				c.fail(fmt.Errorf("heartbeat: %w", err))
				return
			}
		}
	}
}

func (c *channel) readPump() {
	for {
		var m message
		if err := c.conn.ReadJSON(&m); err != nil {
			c.fail(fmt.Errorf("read: %w", err))
			return
		}
		if m.Topic != c.topic {
			continue
		}
		switch m.Event {
		case eventChanges:
			var p changesPayload
			if err := json.Unmarshal(m.Payload, &p); err != nil {
				slog.Warn("dropping malformed realtime change", "topic", c.topic, "err", err)
				continue
			}
			c.sink.Change(toChange(p.Data))
		case eventSystem:
			var p systemPayload
			if err := json.Unmarshal(m.Payload, &p); err == nil && p.Status == "error" {
				c.fail(fmt.Errorf("realtime: %s", p.Message))
				return
			}
		case eventError, eventClose:
			c.fail(fmt.Errorf("channel %s: %s", c.topic, m.Event))
			return
		}
	}
}

func toChange(d changeData) feed.RawChange {
	c := feed.RawChange{Type: d.Type}
	if len(d.Record) > 0 && string(d.Record) != "null" && string(d.Record) != "{}" {
		c.New = feed.JSONRecord(d.Record)
	}
	if len(d.OldRecord) > 0 && string(d.OldRecord) != "null" && string(d.OldRecord) != "{}" {
		c.Old = feed.JSONRecord(d.OldRecord)
	}
	return c
}

// fail reports a broken socket once. Failures caused by Close are not reported.
func (c *channel) fail(err error) {
	if c.closing.Load() {
		return
	}
	c.shutdown()
	c.sink.Fail(fmt.Errorf("%v: %w", err, domain.ErrConnection))
}

func (c *channel) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Close leaves the channel and closes the socket. Safe to call more than once.
func (c *channel) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	ref := c.nextRef()
	leave := message{Topic: c.topic, Event: eventLeave, Payload: json.RawMessage(`{}`), Ref: &ref, JoinRef: &c.joinRef}
	if err := c.write(leave); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		slog.Debug("realtime leave not sent", "topic", c.topic, "err", err)
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.shutdown()
	return nil
}
