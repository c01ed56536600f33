package dto

import (
	"time"

	domainchat "campusmarket/internal/domain/chat"
)

// ChatMessage is the wire representation of a single message.
type ChatMessage struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listing_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

func MapChatMessage(msg *domainchat.Message) ChatMessage {
	if msg == nil {
		return ChatMessage{}
	}
	return ChatMessage{
		ID:         msg.ID,
		ListingID:  msg.ListingID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Read:       msg.Read,
		CreatedAt:  msg.CreatedAt,
	}
}

func MapChatMessages(msgs []*domainchat.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, MapChatMessage(msg))
	}
	return out
}

// Conversation is one derived summary in the viewer's conversation list.
type Conversation struct {
	ID                  string    `json:"id"`
	ListingID           string    `json:"listing_id"`
	ListingTitle        string    `json:"listing_title"`
	ListingImage        string    `json:"listing_image,omitempty"`
	ListingStatus       string    `json:"listing_status,omitempty"`
	OtherUserID         string    `json:"other_user_id"`
	OtherUserName       string    `json:"other_user_name,omitempty"`
	OtherUserPicture    string    `json:"other_user_picture,omitempty"`
	LastMessage         string    `json:"last_message"`
	LastMessageTime     time.Time `json:"last_message_time"`
	LastMessageSenderID string    `json:"last_message_sender_id"`
	IsRead              bool      `json:"is_read"`
	UnreadCount         int       `json:"unread_count"`
}

func MapConversation(conv *domainchat.Conversation) Conversation {
	if conv == nil {
		return Conversation{}
	}
	return Conversation{
		ID:                  conv.ID,
		ListingID:           conv.ListingID,
		ListingTitle:        conv.ListingTitle,
		ListingImage:        conv.ListingImage,
		ListingStatus:       conv.ListingStatus,
		OtherUserID:         conv.OtherUserID,
		OtherUserName:       conv.OtherUserName,
		OtherUserPicture:    conv.OtherUserPicture,
		LastMessage:         domainchat.TruncatePreview(conv.LastMessage, 0),
		LastMessageTime:     conv.LastMessageTime,
		LastMessageSenderID: conv.LastMessageSenderID,
		IsRead:              conv.IsRead,
		UnreadCount:         conv.UnreadCount,
	}
}

func MapConversations(convs []*domainchat.Conversation) []Conversation {
	out := make([]Conversation, 0, len(convs))
	for _, conv := range convs {
		out = append(out, MapConversation(conv))
	}
	return out
}
