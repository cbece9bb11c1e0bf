package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/annosuite/annotator/internal/engine"
	"github.com/annosuite/annotator/internal/store"
)

const (
	flushInterval = 30 * time.Second
	storeTimeout  = 5 * time.Second
)

type inbound struct {
	client *Client
	msg    *Message
	// reply sends msg back to client instead of handling it.
	reply bool
}

// Hub owns every room. Rooms and their engines are only touched from the
// Run goroutine; clients talk to it through channels.
type Hub struct {
	log   *slog.Logger
	store store.Store
	opts  engine.Options

	rooms      map[roomKey]*Room
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewHub(log *slog.Logger, st store.Store, opts engine.Options) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log,
		store:      st,
		opts:       opts,
		rooms:      make(map[roomKey]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.inbound:
			if in.reply {
				h.reply(in.client, in.msg)
				continue
			}
			h.handleMessage(in.client, in.msg)
		case <-ticker.C:
			for _, room := range h.rooms {
				h.flush(room)
			}
		case <-h.stop:
			for _, room := range h.rooms {
				h.flush(room)
			}
			return
		}
	}
}

// Stop saves every dirty room and waits for Run to return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Submit queues a client message for the hub goroutine.
func (h *Hub) Submit(client *Client, msg *Message) {
	select {
	case h.inbound <- inbound{client: client, msg: msg}:
	case <-h.done:
	}
}

// Reply queues msg for client from outside the hub goroutine.
func (h *Hub) Reply(client *Client, msg *Message) {
	select {
	case h.inbound <- inbound{client: client, msg: msg, reply: true}:
	case <-h.done:
	}
}

// reply sends to a single client, evicting it when it has fallen behind.
func (h *Hub) reply(client *Client, msg *Message) {
	if !client.joined {
		return
	}
	if !client.Send(msg) {
		client.log.Warn("send buffer full, evicting client")
		h.removeClient(client)
	}
}

// room returns the live room for key, loading the owner's saved
// annotations when it is opened.
func (h *Hub) room(key roomKey) (*Room, error) {
	if room, ok := h.rooms[key]; ok {
		return room, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	snap, err := h.store.Load(ctx, key.fileID, key.ownerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	room := newRoom(key, h.opts, snap)
	h.rooms[key] = room
	h.log.Info("room opened", "file", key.fileID, "owner", key.ownerID, "pages", len(snap.Pages))
	return room, nil
}

func (h *Hub) addClient(client *Client) {
	room, err := h.room(client.key())
	if err != nil {
		client.log.Error("open room", "error", err)
		client.Send(errorMessage("", err))
		close(client.send)
		return
	}
	room.clients[client.ClientID] = client
	client.joined = true

	welcome, _ := json.Marshal(WelcomePayload{ClientID: client.ClientID, Role: client.Role, OwnerID: client.OwnerID})
	client.Send(&Message{Type: TypeWelcome, FileID: client.FileID, Payload: welcome})

	if stateMsg := room.presence.stateMessage(); stateMsg != nil {
		client.Send(stateMsg)
	}
	client.Send(room.snapshotMessage())

	joinPayload, _ := json.Marshal(PresenceJoinPayload{
		ClientID:    client.ClientID,
		UserID:      client.UserID,
		DisplayName: client.DisplayName,
		Role:        client.Role,
	})
	h.broadcast(room, &Message{Type: TypePresenceJoin, UserID: client.UserID, Payload: joinPayload}, client.ClientID)

	client.log.Info("client joined", "role", client.Role)
}

func (h *Hub) removeClient(client *Client) {
	if !client.joined {
		return
	}
	client.joined = false
	room, ok := h.rooms[client.key()]
	if !ok {
		return
	}

	delete(room.clients, client.ClientID)
	close(client.send)
	room.presence.remove(client.ClientID)

	if len(room.clients) == 0 {
		h.flush(room)
		delete(h.rooms, room.key)
		h.log.Info("room closed", "file", room.key.fileID, "owner", room.key.ownerID)
	}

	leavePayload, _ := json.Marshal(PresenceLeavePayload{ClientID: client.ClientID, UserID: client.UserID})
	h.broadcast(room, &Message{Type: TypePresenceLeave, UserID: client.UserID, Payload: leavePayload}, "")

	client.log.Info("client left")
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	room, ok := h.rooms[sender.key()]
	if !ok || !sender.joined {
		return
	}

	switch msg.Type {
	case TypePresenceUpdate:
		h.handlePresenceUpdate(room, sender, msg)
		return
	case TypeExportState:
		payload, _ := json.Marshal(StatePayload{Document: room.engine.ExportSnapshot()})
		h.reply(sender, &Message{Type: TypeState, FileID: sender.FileID, Payload: payload})
		return
	}

	cmd, ok := commands[msg.Type]
	if !ok && msg.Type != TypeSave {
		sender.log.Warn("unknown message type", "type", msg.Type)
		h.reply(sender, errorMessage(msg.Type, fmt.Errorf("unknown message type %q", msg.Type)))
		return
	}
	if sender.Role != RoleOwner {
		h.reply(sender, errorMessage(msg.Type, ErrReadOnly))
		return
	}

	if msg.Type == TypeSave {
		room.dirty = true
		if err := h.flush(room); err != nil {
			h.reply(sender, errorMessage(msg.Type, err))
		}
		return
	}

	if err := cmd(room.engine, msg.Payload); err != nil {
		sender.log.Debug("command rejected", "type", msg.Type, "error", err)
		h.reply(sender, errorMessage(msg.Type, err))
	}
	// Layer edits bypass the engine's change feed but are persisted state.
	if msg.Type == TypeAddLayer || msg.Type == TypeLayerSettings || msg.Type == TypeRemoveLayer {
		room.changed = true
		room.dirty = true
	}
	if room.changed {
		room.changed = false
		h.broadcast(room, room.snapshotMessage(), "")
	}
}

func (h *Hub) handlePresenceUpdate(room *Room, sender *Client, msg *Message) {
	var presence PresencePayload
	if err := json.Unmarshal(msg.Payload, &presence); err != nil {
		sender.log.Warn("invalid presence payload", "error", err)
		return
	}
	outPayload, _ := json.Marshal(room.presence.update(sender, &presence))
	h.broadcast(room, &Message{Type: TypePresenceUpdate, UserID: sender.UserID, Payload: outPayload}, sender.ClientID)
}

// flush writes a dirty room to the store.
func (h *Hub) flush(room *Room) error {
	if !room.dirty {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.Save(ctx, room.key.fileID, room.key.ownerID, room.engine.ExportSnapshot()); err != nil {
		h.log.Error("save annotations", "error", err, "file", room.key.fileID, "owner", room.key.ownerID)
		return err
	}
	room.dirty = false
	h.log.Debug("annotations saved", "file", room.key.fileID, "owner", room.key.ownerID)
	return nil
}

func (h *Hub) broadcast(room *Room, msg *Message, excludeClientID string) {
	var slow []*Client
	for id, c := range room.clients {
		if id != excludeClientID && !c.Send(msg) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		c.log.Warn("send buffer full, evicting client")
		h.removeClient(c)
	}
}

func errorMessage(request string, err error) *Message {
	payload, _ := json.Marshal(ErrorPayload{Request: request, Error: err.Error()})
	return &Message{Type: TypeError, Payload: payload}
}
