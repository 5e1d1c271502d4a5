package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bazaar/internal/app/dto"
	"bazaar/internal/app/feed"
	conversationsapp "bazaar/internal/app/handlers/conversations"
	"bazaar/internal/app/queries"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type LiveHTTP interface {
	Conversations(c *gin.Context)
	Messages(c *gin.Context)
}

// LiveHandler streams snapshots over websockets. Every frame is a full snapshot; a failed load is
// sent as an error frame and closes the socket.
type LiveHandler struct {
	Queries  queries.Bus
	Logger   *slog.Logger
	Upgrader websocket.Upgrader
}

type frame struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func (h LiveHandler) Conversations(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	query := conversationsapp.WatchConversationsQuery{Actor: user, Limit: parsePositiveInt(c.Query("limit"), 0)}
	f, err := queries.Ask[conversationsapp.WatchConversationsQuery, feed.Feed[dto.ConversationList]](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err, "watch conversations")
		return
	}
	serve(c, h, "conversations", f)
}

func (h LiveHandler) Messages(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	query := conversationsapp.WatchMessagesQuery{Actor: user, ConversationID: c.Param("id"), Limit: parsePositiveInt(c.Query("limit"), 0)}
	f, err := queries.Ask[conversationsapp.WatchMessagesQuery, feed.Feed[dto.MessageList]](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err, "watch messages")
		return
	}
	serve(c, h, "messages", f)
}

func serve[T any](c *gin.Context, h LiveHandler, kind string, f feed.Feed[T]) {
	// A nil CheckOrigin keeps gorilla's same-origin rule.
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket upgrade failed", "error", err)
		}
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go readUntilClosed(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for snapshot, err := range f.Snapshots(ctx) {
		out := frame{Type: kind, Data: snapshot}
		if err != nil {
			out = frame{Type: "error", Error: err.Error()}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if werr := conn.WriteJSON(out); werr != nil || err != nil {
			break
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readUntilClosed drains client frames so pongs and close frames are processed.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// CheckOrigin admits the same browser origins as the REST CORS policy. "*" admits any origin and
// requests without an Origin header (non-browser clients) always pass.
func CheckOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}

var _ LiveHTTP = LiveHandler{}
