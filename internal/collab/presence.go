package collab

import (
	"encoding/json"
	"log/slog"
)

// presenceSet holds the last cursor of every connection in a room, keyed
// by client ID so one user may have several tabs open. Only the hub
// goroutine touches it.
type presenceSet map[string]*PresencePayload

func (ps presenceSet) update(client *Client, p *PresencePayload) *PresencePayload {
	p.UserID = client.UserID
	p.DisplayName = client.DisplayName
	p.Role = client.Role
	ps[client.ClientID] = p
	return p
}

func (ps presenceSet) remove(clientID string) {
	delete(ps, clientID)
}

func (ps presenceSet) stateMessage() *Message {
	if len(ps) == 0 {
		return nil
	}
	payload, err := json.Marshal(PresenceStatePayload{Presences: ps})
	if err != nil {
		slog.Error("marshal presence state", "error", err)
		return nil
	}
	return &Message{Type: TypePresenceState, Payload: payload}
}
