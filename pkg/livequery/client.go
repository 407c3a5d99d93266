/**
 * @description
 * A minimal live-query websocket client for the transfer-event feed. The
 * feed server speaks the Parse LiveQuery protocol (Moralis servers expose
 * the same surface): the client connects, authenticates with an application
 * id, subscribes to one class, and then receives a push message for every
 * created or updated row.
 *
 * @dependencies
 * - github.com/gorilla/websocket: The websocket transport.
 */
package livequery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 15 * time.Second
	subscribeRequest = 1
)

// Config identifies the feed server and the class to watch.
type Config struct {
	ServerURL string
	AppID     string
	Table     string
}

// TransferRecord is one row of the watched transfers class as the feed
// serializes it.
type TransferRecord struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	Confirmed       bool   `json:"confirmed"`
	TransactionHash string `json:"transaction_hash"`
	ObjectID        string `json:"objectId"`
}

// message is the envelope every live-query frame arrives in.
type message struct {
	Op        string          `json:"op"`
	RequestID int             `json:"requestId,omitempty"`
	Code      int             `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Object    json.RawMessage `json:"object,omitempty"`
}

// Client maintains one subscription against the feed server.
type Client struct {
	cfg    Config
	conn   *websocket.Conn
	events chan TransferRecord
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		events: make(chan TransferRecord, 64),
	}
}

// Events yields one record per create/update push. The channel closes when
// the read loop exits.
func (c *Client) Events() <-chan TransferRecord {
	return c.events
}

// Connect dials the feed server and completes the connect + subscribe
// handshake. Any failure here is a startup-fatal condition for the watcher;
// the caller decides how to die.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial feed server: %w", err)
	}
	c.conn = conn

	if err := conn.WriteJSON(map[string]any{
		"op":            "connect",
		"applicationId": c.cfg.AppID,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("send connect op: %w", err)
	}
	if err := c.awaitOp("connected"); err != nil {
		conn.Close()
		return err
	}

	if err := conn.WriteJSON(map[string]any{
		"op":        "subscribe",
		"requestId": subscribeRequest,
		"query":     map[string]any{"className": c.cfg.Table},
	}); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to %s: %w", c.cfg.Table, err)
	}
	if err := c.awaitOp("subscribed"); err != nil {
		conn.Close()
		return err
	}

	log.Printf("level=info component=livequery msg=\"subscribed to transfer feed\" class=%s", c.cfg.Table)
	return nil
}

func (c *Client) awaitOp(want string) error {
	deadline := time.Now().Add(handshakeTimeout)
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await %s op: %w", want, err)
		}
		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Op {
		case want:
			return nil
		case "error":
			return fmt.Errorf("feed server error %d: %s", msg.Code, msg.Error)
		}
	}
}

// Run reads push messages until the socket fails or ctx is cancelled,
// forwarding decoded transfer records to the events channel. Socket failures
// mid-stream are logged, not retried.
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)
	defer c.conn.Close()

	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("level=error component=livequery msg=\"feed read failed\" err=%v", err)
			}
			return
		}

		record, ok := decodePush(raw)
		if !ok {
			continue
		}

		select {
		case c.events <- record:
		case <-ctx.Done():
			return
		}
	}
}

// decodePush maps a create/update frame to a transfer record. All other ops
// are ignored.
func decodePush(raw []byte) (TransferRecord, bool) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return TransferRecord{}, false
	}
	if msg.Op != "create" && msg.Op != "update" {
		return TransferRecord{}, false
	}
	if len(msg.Object) == 0 {
		return TransferRecord{}, false
	}

	var record TransferRecord
	if err := json.Unmarshal(msg.Object, &record); err != nil {
		log.Printf("level=warn component=livequery msg=\"undecodable feed object\" err=%v", err)
		return TransferRecord{}, false
	}
	return record, true
}
