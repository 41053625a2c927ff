// Phoenix channel client for the hosted realtime change feed
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossplay/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	// DefaultHeartbeat is how often a joined channel pings the server.
	DefaultHeartbeat = 30 * time.Second

	defaultJoinTimeout = 10 * time.Second
	writeTimeout       = 5 * time.Second
)

// PostgresChange selects row changes a channel listens to.
type PostgresChange struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type phxReply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type   string          `json:"type"`
		Table  string          `json:"table"`
		Record json.RawMessage `json:"record"`
	} `json:"data"`
}

// RealtimeClient opens Phoenix channels on the hosted realtime websocket.
type RealtimeClient struct {
	url         string
	apiKey      string
	dialer      *websocket.Dialer
	Heartbeat   time.Duration
	JoinTimeout time.Duration
	logger      *log.Logger
}

// NewRealtimeClient targets the realtime endpoint of the project at cfg.URL.
func NewRealtimeClient(cfg shared.SupabaseConfig, logger *log.Logger) (*RealtimeClient, error) {
	endpoint, err := realtimeURL(cfg.URL, cfg.AnonKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RealtimeClient{
		url:         endpoint,
		apiKey:      cfg.AnonKey,
		dialer:      websocket.DefaultDialer,
		Heartbeat:   DefaultHeartbeat,
		JoinTimeout: defaultJoinTimeout,
		logger:      logger,
	}, nil
}

func realtimeURL(base, apiKey string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: supabase url %q", shared.ErrInvalidConfig, base)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"

	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RealtimeChannel is one joined topic on its own websocket connection.
type RealtimeChannel struct {
	conn    *websocket.Conn
	topic   string
	logger  *log.Logger
	writeMu sync.Mutex
	ref     atomic.Int64
	stop    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

// Join dials the server, joins topic listening for changes and calls fn with each changed
// row. Calls to fn are serial, made from the channel's single read loop.
func (c *RealtimeClient) Join(ctx context.Context, topic string, changes []PostgresChange, fn func(record json.RawMessage)) (*RealtimeChannel, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: realtime dial: %v", shared.ErrServiceUnavailable, err)
	}

	ch := &RealtimeChannel{
		conn:   conn,
		topic:  topic,
		logger: c.logger.With("topic", topic),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	joinRef := ch.nextRef()
	payload := map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]bool{"self": false},
			"presence":         map[string]string{"key": ""},
			"postgres_changes": changes,
		},
		"access_token": c.apiKey,
	}
	if err := ch.send("phx_join", payload, joinRef); err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.awaitJoin(joinRef, c.JoinTimeout); err != nil {
		conn.Close()
		return nil, err
	}

	go ch.readLoop(fn)
	go ch.heartbeat(c.Heartbeat)
	return ch, nil
}

// Done is closed when the read loop exits, after Close or a dropped connection.
func (ch *RealtimeChannel) Done() <-chan struct{} {
	return ch.done
}

// Close leaves the topic and closes the connection. It is safe to call more than once.
func (ch *RealtimeChannel) Close() error {
	ch.closeOnce.Do(func() {
		close(ch.stop)
		if err := ch.send("phx_leave", struct{}{}, ch.nextRef()); err != nil {
			ch.logger.Debug("leave not sent", "error", err)
		}

		ch.writeMu.Lock()
		ch.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
		ch.writeMu.Unlock()
		ch.conn.Close()
	})
	<-ch.done
	return nil
}

func (ch *RealtimeChannel) nextRef() string {
	return strconv.FormatInt(ch.ref.Add(1), 10)
}

func (ch *RealtimeChannel) send(event string, payload any, ref string) error {
	return ch.sendTopic(ch.topic, event, payload, ref)
}

func (ch *RealtimeChannel) sendTopic(topic, event string, payload any, ref string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	msg, err := json.Marshal(phxMessage{Topic: topic, Event: event, Payload: data, Ref: ref, JoinRef: ref})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	ch.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ch.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("%w: realtime %s: %v", shared.ErrServiceUnavailable, event, err)
	}
	return nil
}

func (ch *RealtimeChannel) awaitJoin(ref string, timeout time.Duration) error {
	ch.conn.SetReadDeadline(time.Now().Add(timeout))
	defer ch.conn.SetReadDeadline(time.Time{})

	for {
		var msg phxMessage
		if err := ch.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("%w: realtime join: %v", shared.ErrServiceUnavailable, err)
		}
		if msg.Event != "phx_reply" || msg.Ref != ref {
			continue
		}

		var reply phxReply
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("failed to decode join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("%w: realtime join %s: %s %s", shared.ErrAPIRequest, ch.topic, reply.Status, reply.Response)
		}
		return nil
	}
}

func (ch *RealtimeChannel) readLoop(fn func(json.RawMessage)) {
	defer close(ch.done)

	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			select {
			case <-ch.stop:
			default:
				if !errors.Is(err, websocket.ErrCloseSent) {
					ch.logger.Warn("realtime connection lost", "error", err)
				}
			}
			return
		}

		var msg phxMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ch.logger.Warn("undecodable realtime frame", "error", err)
			continue
		}

		switch msg.Event {
		case "postgres_changes":
			var change changePayload
			if err := json.Unmarshal(msg.Payload, &change); err != nil || len(change.Data.Record) == 0 {
				ch.logger.Warn("undecodable change", "error", err)
				continue
			}
			fn(change.Data.Record)
		case "phx_error", "phx_close":
			ch.logger.Warn("channel closed by server", "event", msg.Event)
			return
		}
	}
}

func (ch *RealtimeChannel) heartbeat(every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ch.stop:
			return
		case <-ch.done:
			return
		case <-ticker.C:
			if err := ch.sendTopic("phoenix", "heartbeat", struct{}{}, ch.nextRef()); err != nil {
				ch.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}
