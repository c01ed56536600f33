package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"campusmarket/internal/app/dto"
	chatsvc "campusmarket/internal/app/services/chat"
	domainchat "campusmarket/internal/domain/chat"
	domainlistings "campusmarket/internal/domain/listings"
)

// ChatHandler exposes the conversation list, message history and send
// endpoints.
type ChatHandler struct {
	Service *chatsvc.Service
	Logger  *slog.Logger
}

// ListConversations returns the viewer's derived conversation summaries,
// most recently active first.
func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversations, err := h.Service.Conversations(c.Request.Context(), p.ID)
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": dto.MapConversations(conversations)})
}

// ListMessages returns one conversation's history oldest-first. Fetching also
// marks the viewer's inbound messages read (best effort).
func (h ChatHandler) ListMessages(c *gin.Context) {
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
	messages, err := h.Service.History(c.Request.Context(), listingID, p.ID, otherUserID)
	if err != nil {
		h.respondChatError(c, err, "list messages", "listing_id", listingID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": dto.MapChatMessages(messages)})
}

type sendMessageRequest struct {
	ListingID  string `json:"listing_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// SendMessage validates and persists a message, returning the server-assigned
// id and timestamp.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Service.Send(c.Request.Context(), chatsvc.SendParams{
		ListingID:  strings.TrimSpace(req.ListingID),
		SenderID:   p.ID,
		ReceiverID: strings.TrimSpace(req.ReceiverID),
		Content:    req.Content,
	})
	if err != nil {
		h.respondChatError(c, err, "send message", "listing_id", req.ListingID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": dto.MapChatMessage(msg)})
}

type markReadRequest struct {
	ListingID   string `json:"listing_id"`
	OtherUserID string `json:"other_user_id"`
}

// MarkRead explicitly transitions a conversation's inbound messages to read.
func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.ListingID = strings.TrimSpace(req.ListingID)
	req.OtherUserID = strings.TrimSpace(req.OtherUserID)
	if req.ListingID == "" || req.OtherUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing_id and other_user_id are required"})
		return
	}
	updated, err := h.Service.MarkRead(c.Request.Context(), req.ListingID, p.ID, req.OtherUserID)
	if err != nil {
		h.respondChatError(c, err, "mark read", "listing_id", req.ListingID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// UnreadCount returns the user-wide unread badge count, re-derived from the
// store on every call.
func (h ChatHandler) UnreadCount(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	count, err := h.Service.UnreadTotal(c.Request.Context(), p.ID)
	if err != nil {
		h.respondChatError(c, err, "unread count", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	switch {
	case errors.Is(err, domainchat.ErrEmptyContent),
		errors.Is(err, domainchat.ErrContentTooLong),
		errors.Is(err, domainchat.ErrSelfMessage),
		errors.Is(err, domainchat.ErrListingRequired),
		errors.Is(err, domainchat.ErrReceiverRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domainlistings.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat call failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat unavailable"})
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
