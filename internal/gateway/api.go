// ABOUTME: REST handlers for conversations, history, sending and unread totals
// ABOUTME: Every route here runs behind the JWT middleware and answers JSON

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/2389/dm-gateway/internal/auth"
	"github.com/2389/dm-gateway/internal/conversation"
	"github.com/2389/dm-gateway/internal/delivery"
	"github.com/2389/dm-gateway/internal/store"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 64 << 10

// SendMessageRequest is the JSON request body for POST /api/chat/messages.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiverId" validate:"required,gt=0"`
	Content    string `json:"content" validate:"required"`
}

// UserResponse is the public view of another participant.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ConversationResponse is one entry of GET /api/chat/conversations.
type ConversationResponse struct {
	ID          int64                    `json:"id"`
	OtherUser   *UserResponse            `json:"otherUser"`
	LastMessage *delivery.MessagePayload `json:"lastMessage"`
	UnreadCount int                      `json:"unreadCount"`
	UpdatedAt   time.Time                `json:"updatedAt"`
}

// HistoryResponse is the JSON response for GET /api/chat/messages/{userId}.
type HistoryResponse struct {
	Messages []*delivery.MessagePayload `json:"messages"`
	HasMore  bool                       `json:"hasMore"`
}

// UnreadCountResponse is the JSON response for GET /api/chat/unread-count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// handleListConversations handles GET /api/chat/conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserID(r.Context())

	summaries, err := g.service.ConversationsFor(r.Context(), userID)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	response := lo.Map(summaries, func(s *conversation.Summary, _ int) *ConversationResponse {
		return toConversationResponse(s)
	})
	g.sendJSON(w, http.StatusOK, response)
}

func toConversationResponse(s *conversation.Summary) *ConversationResponse {
	resp := &ConversationResponse{
		ID:          s.ID,
		UnreadCount: s.UnreadCount,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.OtherUser != nil {
		resp.OtherUser = &UserResponse{ID: s.OtherUser.ID, Username: s.OtherUser.Username, Avatar: s.OtherUser.Avatar}
	}
	if s.LastMessage != nil {
		resp.LastMessage = delivery.NewMessagePayload(s.LastMessage, nil)
	}
	return resp
}

// handleHistory handles GET /api/chat/messages/{userId}?page=&limit=.
// Reading a page marks the caller's unread messages in it as read, and the
// other participant gets messagesRead if that changed anything.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserID(r.Context())

	otherUserID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid page")
		return
	}
	limit, err := queryInt(r, "limit", g.service.Options().DefaultPageSize)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	history, _, err := g.router.History(r.Context(), userID, otherUserID, page, limit)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	g.sendJSON(w, http.StatusOK, &HistoryResponse{
		Messages: lo.Map(history.Messages, func(m *store.Message, _ int) *delivery.MessagePayload {
			return delivery.NewMessagePayload(m, nil)
		}),
		HasMore: history.HasMore,
	})
}

// handleSendMessage handles POST /api/chat/messages. The message is stored
// and pushed to the receiver if they are connected.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserID(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := g.validate.Struct(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	sent, err := g.router.Send(r.Context(), userID, req.ReceiverID, req.Content)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	g.logger.Debug("message sent over REST",
		"message_id", sent.Message.ID,
		"sender_id", userID,
		"receiver_id", req.ReceiverID,
		"outcome", sent.Outcome.String())
	g.sendJSON(w, http.StatusCreated, delivery.NewMessagePayload(sent.Message, nil))
}

// handleUnreadCount handles GET /api/chat/unread-count.
func (g *Gateway) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserID(r.Context())

	total, err := g.service.UnreadTotal(r.Context(), userID)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, &UnreadCountResponse{Count: total})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// writeServiceError maps messaging errors to HTTP status codes.
func (g *Gateway) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, conversation.ErrInvalidArgument):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
	default:
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
