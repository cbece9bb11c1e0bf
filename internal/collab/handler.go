package collab

import (
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/annosuite/annotator/internal/auth"
	"github.com/annosuite/annotator/internal/typeid"
)

// Handler upgrades /ws/files/{fileId} to a live session. The caller joins
// their own annotations, or with ?owner= someone else's as a viewer. Every
// connection needs a valid token, the same rule the REST reads apply.
type Handler struct {
	hub       *Hub
	validator *auth.Validator
	origins   []string
}

func NewHandler(hub *Hub, validator *auth.Validator, allowedOrigins []string) *Handler {
	return &Handler{hub: hub, validator: validator, origins: originPatterns(allowedOrigins)}
}

// originPatterns turns configured origins into the host patterns the
// websocket library matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]
	if fileID == "" {
		http.Error(w, "missing file id", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	ownerID := q.Get("owner")

	token := q.Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.validator.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	displayName := q.Get("name")
	if displayName == "" {
		displayName = userID
	}
	if ownerID == "" {
		ownerID = userID
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.hub.log.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(h.hub, conn, userID, displayName, fileID, ownerID, typeid.NewSessionID())
	h.hub.Register(client)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}
