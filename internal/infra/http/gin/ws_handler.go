package ginserver

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"campusmarket/internal/app/dto"
	chatsvc "campusmarket/internal/app/services/chat"
	domainchat "campusmarket/internal/domain/chat"
	"campusmarket/internal/infra/messaging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 25 * time.Second
	sendBufferSize = 32
)

// ChatSocketHandler upgrades a conversation view to a websocket: it replays
// the loaded history and then streams live messages through a chat session.
// Client frames carry sends and typing signals.
type ChatSocketHandler struct {
	Service *chatsvc.Service
	Hub     *messaging.Hub
	Logger  *slog.Logger

	mu    sync.Mutex
	rooms map[string][]*socketClient
}

type socketClient struct {
	conversationID string
	userID         string
	conn           *websocket.Conn
	session        *chatsvc.Session
	send           chan socketFrame
	quit           chan struct{}
	closeOnce      sync.Once
}

type socketFrame struct {
	Type     string            `json:"type"`
	Message  *dto.ChatMessage  `json:"message,omitempty"`
	Messages []dto.ChatMessage `json:"messages,omitempty"`
	UserID   string            `json:"user_id,omitempty"`
	IsTyping bool              `json:"is_typing,omitempty"`
	Content  string            `json:"content,omitempty"`
	Error    string            `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot send Authorization headers on websocket upgrades; auth
	// happens via the token query parameter before we get here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve handles GET /chat/ws?listing_id=&other_user_id=.
func (h *ChatSocketHandler) Serve(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	listingID := strings.TrimSpace(c.Query("listing_id"))
	otherUserID := strings.TrimSpace(c.Query("other_user_id"))
	if listingID == "" || otherUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing_id and other_user_id are required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket upgrade failed", "error", err)
		}
		return
	}

	client := &socketClient{
		conversationID: domainchat.ConversationID(p.ID, otherUserID, listingID),
		userID:         p.ID,
		conn:           conn,
		send:           make(chan socketFrame, sendBufferSize),
		quit:           make(chan struct{}),
	}
	client.session = chatsvc.NewSession(h.Service, h.Hub, listingID, p.ID, otherUserID, func(msg *domainchat.Message) {
		frame := dto.MapChatMessage(msg)
		client.enqueue(socketFrame{Type: "message", Message: &frame})
	})

	if err := client.session.Load(c.Request.Context()); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "load failed"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	client.enqueue(socketFrame{Type: "history", Messages: dto.MapChatMessages(client.session.Messages())})
	if err := client.session.GoLive(); err != nil {
		conn.Close()
		return
	}

	h.register(client)
	if h.Logger != nil {
		h.Logger.Info("chat socket opened", "conversation_id", client.conversationID, "user_id", p.ID)
	}

	go client.writePump()
	h.readPump(c, client)
}

func (h *ChatSocketHandler) readPump(c *gin.Context, client *socketClient) {
	defer h.teardown(client)

	client.conn.SetReadLimit(8 * 1024)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame socketFrame
		if err := client.conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "send":
			msg, err := client.session.Send(c.Request.Context(), frame.Content)
			if err != nil {
				client.enqueue(socketFrame{Type: "error", Error: err.Error()})
				continue
			}
			// Confirm to the sender; the hub echo is absorbed by session
			// de-duplication so no double frame is emitted.
			confirmed := dto.MapChatMessage(msg)
			client.enqueue(socketFrame{Type: "message", Message: &confirmed})
		case "typing":
			client.session.SetTyping(client.userID, frame.IsTyping)
			h.relayTyping(client, frame.IsTyping)
		}
	}
}

func (client *socketClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.quit:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = client.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

// enqueue drops frames when the client cannot keep up; the next full fetch
// recovers anything missed. Safe to call concurrently with teardown.
func (client *socketClient) enqueue(frame socketFrame) {
	select {
	case client.send <- frame:
	case <-client.quit:
	default:
	}
}

func (h *ChatSocketHandler) register(client *socketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms == nil {
		h.rooms = make(map[string][]*socketClient)
	}
	h.rooms[client.conversationID] = append(h.rooms[client.conversationID], client)
}

func (h *ChatSocketHandler) teardown(client *socketClient) {
	client.session.Close()

	h.mu.Lock()
	peers := h.rooms[client.conversationID]
	for i, peer := range peers {
		if peer == client {
			h.rooms[client.conversationID] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(h.rooms[client.conversationID]) == 0 {
		delete(h.rooms, client.conversationID)
	}
	h.mu.Unlock()

	client.closeOnce.Do(func() { close(client.quit) })
	client.conn.Close()
	if h.Logger != nil {
		h.Logger.Info("chat socket closed", "conversation_id", client.conversationID, "user_id", client.userID)
	}
}

// relayTyping forwards a typing signal to the other sockets open on the same
// conversation, both sides derive the same conversation id.
func (h *ChatSocketHandler) relayTyping(from *socketClient, isTyping bool) {
	h.mu.Lock()
	peers := append([]*socketClient(nil), h.rooms[from.conversationID]...)
	h.mu.Unlock()
	for _, peer := range peers {
		if peer == from {
			continue
		}
		peer.enqueue(socketFrame{Type: "typing", UserID: from.userID, IsTyping: isTyping})
	}
}

var _ ChatSocketHTTP = (*ChatSocketHandler)(nil)
