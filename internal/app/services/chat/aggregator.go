package chat

import (
	domainchat "campusmarket/internal/domain/chat"
)

// deriveSummaries folds a viewer's full message log (newest first) into one
// summary per distinct (listing, counterpart) pair. The first message seen for
// a pair is by construction the most recent, so it seeds the preview and later
// occurrences never overwrite it. Result order is first-materialized, i.e.
// most recently active conversation first.
//
// Unread counts come from the same slice: messages from the counterpart to the
// viewer still flagged unread. Listing and counterpart display fields are left
// for the caller to enrich.
func deriveSummaries(viewerID string, msgs []*domainchat.Message) []*domainchat.Conversation {
	summaries := make([]*domainchat.Conversation, 0)
	byKey := make(map[string]*domainchat.Conversation)

	for _, msg := range msgs {
		other := msg.Counterpart(viewerID)
		key := msg.PairKey(viewerID)

		conv, ok := byKey[key]
		if !ok {
			conv = &domainchat.Conversation{
				ID:                  key,
				ListingID:           msg.ListingID,
				OtherUserID:         other,
				LastMessage:         msg.Content,
				LastMessageTime:     msg.CreatedAt,
				LastMessageSenderID: msg.SenderID,
				// A conversation whose newest message was sent by the viewer
				// counts as read from the viewer's side.
				IsRead: msg.ReceiverID != viewerID || msg.Read,
			}
			byKey[key] = conv
			summaries = append(summaries, conv)
		}
		if msg.SenderID == other && msg.ReceiverID == viewerID && !msg.Read {
			conv.UnreadCount++
		}
	}
	return summaries
}
