package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4 << 20 // imports carry whole documents
	sendBuffer = 256
)

// Client is one websocket connection to a room. The owner's client drives
// the room engine; viewers only watch.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger

	UserID      string
	DisplayName string
	FileID      string
	OwnerID     string
	ClientID    string
	Role        Role

	// joined is owned by the hub goroutine.
	joined bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, displayName, fileID, ownerID, clientID string) *Client {
	role := RoleOwner
	if ownerID != userID {
		role = RoleViewer
	}
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		log:         hub.log.With("user", userID, "file", fileID, "client", clientID),
		UserID:      userID,
		DisplayName: displayName,
		FileID:      fileID,
		OwnerID:     ownerID,
		ClientID:    clientID,
		Role:        role,
	}
}

func (c *Client) key() roomKey {
	return roomKey{fileID: c.FileID, ownerID: c.OwnerID}
}

// ReadPump decodes incoming frames and hands them to the hub until the
// connection closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMsgSize)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					c.log.Debug("read error", "error", err)
				}
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.log.Warn("invalid message", "error", err)
			c.hub.Reply(c, errorMessage("", errors.New("invalid message")))
			continue
		}

		// Identity comes from the connection, never from the frame.
		msg.UserID = c.UserID
		msg.ClientID = c.ClientID
		msg.FileID = c.FileID

		c.hub.Submit(c, &msg)
	}
}

// WritePump drains the send queue and keeps the connection alive with
// pings. It returns when the hub closes the queue.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Send queues msg without blocking the hub. It reports false when the
// client is too far behind to keep up; the hub then evicts it.
func (c *Client) Send(msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("marshal message", "error", err, "type", msg.Type)
		return true
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
