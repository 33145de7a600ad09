package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/quietline/quietline/internal/api/http/converter"
	"github.com/quietline/quietline/internal/channel"
	"github.com/quietline/quietline/internal/chat"
	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/internal/profile"
	"github.com/quietline/quietline/internal/room"
	"github.com/quietline/quietline/lib/logger/sl"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type RoomController struct {
	rooms    *room.Service
	chats    *chat.Service
	profiles *profile.Service
	ch       channel.Channel
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewRoomController(rooms *room.Service, chats *chat.Service, profiles *profile.Service, ch channel.Channel, log *slog.Logger) *RoomController {
	if log == nil {
		log = slog.Default()
	}
	return &RoomController{
		rooms:    rooms,
		chats:    chats,
		profiles: profiles,
		ch:       ch,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	id, ok := profileID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "profile not authenticated"})
		return
	}

	host, err := c.profiles.Get(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	r, err := c.rooms.Create(ctx.Request.Context(), host)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"room": converter.RoomToApi(r)})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	r, err := c.rooms.Get(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		ctx.JSON(roomErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(r)})
}

func (c *RoomController) JoinRoom(ctx *gin.Context) {
	id, ok := profileID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "profile not authenticated"})
		return
	}

	guest, err := c.profiles.Get(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	r, err := c.rooms.Join(ctx.Request.Context(), ctx.Param("code"), guest)
	if err != nil {
		ctx.JSON(roomErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(r)})
}

func (c *RoomController) LeaveRoom(ctx *gin.Context) {
	if err := c.rooms.Leave(ctx.Request.Context(), ctx.Param("code")); err != nil {
		ctx.JSON(roomErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "room left"})
}

func roomErrStatus(err error) int {
	switch {
	case errors.Is(err, room.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, channel.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, channel.ErrRoomClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// wsFrame is one message of the room's websocket feed.
type wsFrame struct {
	Type     string                 `json:"type"` // "status", "messages", "signal" or "error"
	Status   domain.RoomStatus      `json:"status,omitempty"`
	Peer     *domain.Profile        `json:"peer,omitempty"`
	Messages []domain.Message       `json:"messages,omitempty"`
	Signal   *domain.SignalEnvelope `json:"signal,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// inboundFrame is what a connected client may send over the feed.
type inboundFrame struct {
	Type   string                 `json:"type"` // "chat" or "signal"
	Sender domain.MessageSender   `json:"sender,omitempty"`
	Text   string                 `json:"text,omitempty"`
	Signal *domain.SignalEnvelope `json:"signal,omitempty"`
}

// AttachRoom upgrades to a websocket and relays everything the session
// needs: room status transitions resolved against the caller's role,
// re-sorted message snapshots, and the counterpart's signal envelopes.
// Inbound frames carry chat messages and signaling payloads.
func (c *RoomController) AttachRoom(ctx *gin.Context) {
	code := ctx.Param("code")
	role := domain.PeerRole(ctx.Query("role"))
	if !role.Valid() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "role must be host or guest"})
		return
	}

	if _, err := c.rooms.Get(ctx.Request.Context(), code); err != nil {
		ctx.JSON(roomErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Warn("websocket upgrade failed", sl.Err(err))
		return
	}

	wsCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statuses, err := c.rooms.Watch(wsCtx, code, role)
	if err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
		conn.Close()
		return
	}
	messages, err := c.chats.Watch(wsCtx, code)
	if err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
		conn.Close()
		return
	}
	signals, err := c.ch.WatchSignals(wsCtx, code, role)
	if err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
		conn.Close()
		return
	}

	frames := make(chan wsFrame, 64)
	errs := make(chan wsFrame, 8)
	go c.fanIn(wsCtx, frames, statuses, messages, signals)
	go c.writePump(cancel, conn, frames, errs)

	c.readLoop(wsCtx, conn, code, role, errs)
	cancel()
	conn.Close()
}

// fanIn merges the three watcher streams into the frame queue. The
// queue is closed, never abandoned, so the write pump always drains the
// terminal ended frame before shutting the socket down.
func (c *RoomController) fanIn(ctx context.Context, frames chan<- wsFrame, statuses <-chan room.StatusUpdate, messages <-chan []domain.Message, signals <-chan domain.SignalEnvelope) {
	defer close(frames)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-statuses:
			if !ok {
				return
			}
			frame := wsFrame{Type: "status", Status: update.Status, Peer: update.Peer}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
			if update.Status == domain.RoomEnded {
				return
			}
		case msgs, ok := <-messages:
			if !ok {
				return
			}
			select {
			case frames <- wsFrame{Type: "messages", Messages: msgs}:
			case <-ctx.Done():
				return
			}
		case env, ok := <-signals:
			if !ok {
				return
			}
			select {
			case frames <- wsFrame{Type: "signal", Signal: &env}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// writePump is the only writer on the connection. It exits once the
// frame queue is closed and drained, closing the socket behind it.
func (c *RoomController) writePump(cancel context.CancelFunc, conn *websocket.Conn, frames, errs <-chan wsFrame) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-frames:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case frame := <-errs:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *RoomController) readLoop(ctx context.Context, conn *websocket.Conn, code string, role domain.PeerRole, errs chan<- wsFrame) {
	reportErr := func(text string) {
		select {
		case errs <- wsFrame{Type: "error", Error: text}:
		default:
		}
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		switch in.Type {
		case "chat":
			sender := in.Sender
			if sender == "" {
				sender = domain.SenderUser
			}
			if _, err := c.chats.Send(ctx, code, sender, in.Text); err != nil {
				reportErr(err.Error())
			}
		case "signal":
			if in.Signal == nil || in.Signal.Sender != role {
				reportErr("signal sender must match connection role")
				continue
			}
			if err := c.ch.PutSignal(ctx, code, *in.Signal); err != nil {
				reportErr(err.Error())
			}
		default:
			reportErr("unsupported frame type: " + in.Type)
		}
	}
}
