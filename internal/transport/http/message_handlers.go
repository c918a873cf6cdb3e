package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/C2SE29-Capstone2/kinderchat/internal/observability"
	"github.com/C2SE29-Capstone2/kinderchat/internal/proto"
	"github.com/C2SE29-Capstone2/kinderchat/internal/store"
)

var (
	errRoleMismatch       = errors.New("requested side does not match account role")
	errCounterpartMissing = errors.New("counterpart not found")
)

// MessageHandlers serves classroom conversation history and sends.
type MessageHandlers struct {
	store   store.Store
	limiter *sendLimiter
	log     *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, limiter *sendLimiter, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store:   st,
		limiter: limiter,
		log:     logger,
	}
}

// ListMessages returns the newest page of a conversation.
// GET /api/classrooms/:classroom_id/messages?counterpart_id=&as=&limit=
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	uid, role, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	classroomID, err := positiveID(c.Param("classroom_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: "invalid classroom_id"})
		return
	}
	counterpartID, err := positiveID(c.Query("counterpart_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: "invalid counterpart_id"})
		return
	}
	limit, err := historyLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: err.Error()})
		return
	}

	asTeacher := role.IsTeacher()
	if as := c.Query("as"); as != "" {
		switch as {
		case proto.AsTeacher:
			asTeacher = true
		case proto.AsCounterpart:
			asTeacher = false
		default:
			c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: "as must be teacher or counterpart"})
			return
		}
	}

	conv, err := h.resolveConversation(c, classroomID, uid, role, counterpartID, asTeacher)
	if err != nil {
		h.writeResolveError(c, err)
		return
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), conv, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("classroom_id", classroomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, messagesToDTO(msgs, uid))
}

// SendMessage stores a message in a conversation. A repeated Idempotency-Key
// returns the original message with 200 instead of storing a duplicate.
// POST /api/classrooms/:classroom_id/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	uid, role, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	classroomID, err := positiveID(c.Param("classroom_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: "invalid classroom_id"})
		return
	}

	var req proto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: "invalid request body"})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: "content must not be empty"})
		return
	}

	conv, err := h.resolveConversation(c, classroomID, uid, role, req.CounterpartID, req.IsTeacherSender)
	if err != nil {
		h.writeResolveError(c, err)
		return
	}

	if !h.limiter.allow(uid) {
		c.JSON(http.StatusTooManyRequests, proto.ErrorResponse{Error: "too many messages, slow down"})
		return
	}

	saved, created, err := h.store.SaveMessage(c.Request.Context(), &store.Message{
		ClassroomID:    conv.ClassroomID,
		TeacherID:      conv.TeacherID,
		MemberID:       conv.MemberID,
		SenderID:       uid,
		Body:           content,
		IdempotencyKey: c.GetHeader(proto.HeaderIdempotencyKey),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, proto.ErrorResponse{Error: "duplicate message"})
			return
		}
		h.log.Error().Err(err).Int64("classroom_id", classroomID).Msg("failed to save message")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Error: "internal server error"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		observability.IncMessageStored()
		h.log.Debug().Int64("message_id", saved.ID).Int64("classroom_id", classroomID).Int64("sender_id", uid).Msg("message stored")
	}
	c.JSON(status, messageToDTO(saved, uid))
}

// resolveConversation maps the requester and the counterpart to the stored
// teacher/member pair. The requester's account role must match the side they
// claim, and the counterpart must sit on the other side.
func (h *MessageHandlers) resolveConversation(c *gin.Context, classroomID, uid int64, role store.Role, counterpartID int64, asTeacher bool) (store.Conversation, error) {
	if asTeacher != role.IsTeacher() {
		return store.Conversation{}, errRoleMismatch
	}

	counterpart, err := h.store.GetUserByID(c.Request.Context(), counterpartID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Conversation{}, errCounterpartMissing
		}
		return store.Conversation{}, err
	}
	if counterpart.ID == uid || counterpart.Role.IsTeacher() == asTeacher {
		return store.Conversation{}, errCounterpartMissing
	}

	if asTeacher {
		return store.Conversation{ClassroomID: classroomID, TeacherID: uid, MemberID: counterpart.ID}, nil
	}
	return store.Conversation{ClassroomID: classroomID, TeacherID: counterpart.ID, MemberID: uid}, nil
}

func (h *MessageHandlers) writeResolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errRoleMismatch):
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, errCounterpartMissing):
		c.JSON(http.StatusNotFound, proto.ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("failed to resolve conversation")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Error: "internal server error"})
	}
}

func positiveID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive, got %d", id)
	}
	return id, nil
}

func historyLimit(raw string) (int, error) {
	if raw == "" {
		return proto.DefaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return min(limit, proto.MaxHistoryLimit), nil
}
