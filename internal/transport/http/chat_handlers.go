package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/metrics"
	"github.com/vovakirdan/wirechat-dm/internal/service/chat"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// APIResponse is the envelope of the chat endpoints.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ChatHandlers serves thread history and message sending over REST.
type ChatHandlers struct {
	chat *chat.Service
	log  *zerolog.Logger
}

// NewChatHandlers creates chat handlers.
func NewChatHandlers(chatService *chat.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{chat: chatService, log: logger}
}

// SendMessageRequest is the body of POST /api/chat.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

// SenderResponse is the sender summary embedded in history entries.
type SenderResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MessageResponse is one message in API responses.
type MessageResponse struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"threadId"`
	SenderID  string          `json:"senderId"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"createdAt"`
	Sender    *SenderResponse `json:"sender,omitempty"`
}

// ThreadResponse is one inbox entry.
type ThreadResponse struct {
	ID            string     `json:"id"`
	PeerID        string     `json:"peerId"`
	LastMessage   string     `json:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		SenderID:  m.SenderID,
		Message:   m.Body,
		CreatedAt: m.CreatedAt,
	}
}

// GetHistory returns a thread's messages oldest first.
// GET /api/chat/:threadId
func (h *ChatHandlers) GetHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIResponse{Message: "unauthorized"})
		return
	}

	entries, err := h.chat.History(c.Request.Context(), c.Param("threadId"), userID)
	if err != nil {
		h.writeError(c, err, "failed to fetch chat history")
		return
	}

	chats := make([]MessageResponse, 0, len(entries))
	for _, entry := range entries {
		resp := messageResponse(entry.Message)
		resp.Sender = &SenderResponse{
			ID:    entry.Message.SenderID,
			Name:  entry.SenderName,
			Email: entry.SenderEmail,
		}
		chats = append(chats, resp)
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Chat history fetched",
		Data:    gin.H{"chats": chats},
	})
}

// SendMessage persists a message from the caller. It does not push to the
// recipient's live connection; clients pick it up from history.
// POST /api/chat
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIResponse{Message: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Message: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ReceiverID) == "" {
		c.JSON(http.StatusBadRequest, APIResponse{Message: "receiverId is required"})
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), userID, req.ReceiverID, req.Message)
	if err != nil {
		h.writeError(c, err, "failed to send message")
		return
	}
	metrics.MessagesPersisted.WithLabelValues("http").Inc()

	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Message: "Message sent",
		Data:    messageResponse(msg),
	})
}

// ListThreads returns the caller's threads, most recent activity first.
// GET /api/threads
func (h *ChatHandlers) ListThreads(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIResponse{Message: "unauthorized"})
		return
	}

	threads, err := h.chat.Threads(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "failed to list threads")
		return
	}

	out := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadResponse{
			ID:            t.ID,
			PeerID:        t.Peer(userID),
			LastMessage:   t.LastMessageText,
			LastMessageAt: t.LastMessageAt,
			UpdatedAt:     t.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Threads fetched",
		Data:    gin.H{"threads": out},
	})
}

func (h *ChatHandlers) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		c.JSON(http.StatusBadRequest, APIResponse{Message: err.Error()})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, APIResponse{Message: err.Error()})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, APIResponse{Message: err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(http.StatusInternalServerError, APIResponse{Message: "internal server error"})
	}
}
