package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"chatsync/internal/models"
)

// pageResponse is the envelope the server wraps list responses in. HasMore is
// optional; when absent, callers fall back to the full-page heuristic.
type pageResponse[T any] struct {
	Items   []T   `json:"items"`
	HasMore *bool `json:"hasMore,omitempty"`
}

func (r *pageResponse[T]) more(requested int) bool {
	if r.HasMore != nil {
		return *r.HasMore
	}
	return len(r.Items) == requested
}

// ChatPage fetches one page of the chat list. A zero category means no
// category filter. Returns the summaries and whether more pages exist.
func (c *Client) ChatPage(ctx context.Context, category models.Category, page, pageSize int, search string) ([]models.ChatSummary, bool, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	if category != "" {
		q.Set("category", string(category))
	}
	if search != "" {
		q.Set("search", search)
	}

	var resp pageResponse[models.ChatSummary]
	if err := c.doRequest(ctx, http.MethodGet, "/chats", q, nil, &resp); err != nil {
		return nil, false, err
	}
	return resp.Items, resp.more(pageSize), nil
}

// MessageHistory fetches one skip-based page of a conversation's history,
// newest page first.
func (c *Client) MessageHistory(ctx context.Context, chatID string, skip, limit int) ([]models.Message, bool, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var resp pageResponse[models.Message]
	if err := c.doRequest(ctx, http.MethodGet, "/chats/"+chatID+"/messages", q, nil, &resp); err != nil {
		return nil, false, err
	}
	return resp.Items, resp.more(limit), nil
}

// SendMessage submits a new message and returns the server-confirmed record
// with its authoritative id and timestamps.
func (c *Client) SendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var confirmed models.Message
	err := c.doRequest(ctx, http.MethodPost, "/chats/"+msg.ChatID+"/messages", nil, msg, &confirmed)
	return confirmed, err
}

// EditMessage submits an edit and returns the updated record.
func (c *Client) EditMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var updated models.Message
	err := c.doRequest(ctx, http.MethodPut, "/chats/"+msg.ChatID+"/messages/"+msg.ID, nil, msg, &updated)
	return updated, err
}

// DeleteMessage asks the server to delete a message. The local list keeps a
// tombstone either way.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/chats/"+chatID+"/messages/"+messageID, nil, nil, nil)
}

// PinMessage pins a message in its conversation.
func (c *Client) PinMessage(ctx context.Context, chatID, messageID string) error {
	return c.doRequest(ctx, http.MethodPost, "/chats/"+chatID+"/pins/"+messageID, nil, nil, nil)
}

// UnpinMessage removes a pin.
func (c *Client) UnpinMessage(ctx context.Context, chatID, messageID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/chats/"+chatID+"/pins/"+messageID, nil, nil, nil)
}

// PinnedMessages fetches the pinned set for a conversation.
func (c *Client) PinnedMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var resp pageResponse[models.Message]
	if err := c.doRequest(ctx, http.MethodGet, "/chats/"+chatID+"/pins", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// MarkRead records the local user's last-read message for a conversation.
func (c *Client) MarkRead(ctx context.Context, chatID, messageID string) error {
	body := models.ReadPayload{ChatID: chatID, MessageID: messageID}
	return c.doRequest(ctx, http.MethodPost, "/chats/"+chatID+"/read", nil, body, nil)
}

// LastReadMarker fetches the counterparty's last-read message id for a
// direct conversation.
func (c *Client) LastReadMarker(ctx context.Context, chatID string) (string, error) {
	var resp struct {
		LastReadMessageID string `json:"lastReadedMessageId"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/chats/"+chatID+"/read", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.LastReadMessageID, nil
}
