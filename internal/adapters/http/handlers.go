package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/domain"
	"github.com/interviewly/meetkit/internal/meeting"
)

type handlers struct {
	deps Deps
}

type createMeetingRequest struct {
	Title  string `json:"title" binding:"required"`
	HostID string `json:"host_id" binding:"required"`
}

func (h *handlers) createMeeting(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing title or host_id"})
		return
	}

	m, err := h.deps.Store.CreateMeeting(c.Request.Context(), domain.UserID(req.HostID), req.Title)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create meeting")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *handlers) getMeeting(c *gin.Context) {
	m, err := h.deps.Store.GetMeeting(c.Request.Context(), domain.MeetingID(c.Param("id")))
	if err != nil {
		if errors.Is(err, meeting.ErrMeetingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *handlers) listParticipants(c *gin.Context) {
	list, err := h.deps.Store.ListParticipants(c.Request.Context(), domain.MeetingID(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": list})
}

func (h *handlers) listChat(c *gin.Context) {
	msgs, err := h.deps.Store.ListChat(c.Request.Context(), domain.MeetingID(c.Param("id")), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type postChatRequest struct {
	SenderID   string `json:"sender_id" binding:"required"`
	SenderName string `json:"sender_name" binding:"required"`
	Body       string `json:"body" binding:"required"`
}

func (h *handlers) postChat(c *gin.Context) {
	var req postChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sender or body"})
		return
	}

	sender := &domain.User{ID: domain.UserID(req.SenderID), DisplayName: req.SenderName}
	msg, err := h.deps.Store.AppendChat(c.Request.Context(), domain.MeetingID(c.Param("id")), sender, req.Body)
	if err != nil {
		if errors.Is(err, meeting.ErrMeetingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// assistReply generates one text-interviewer turn; the reply lands in chat
// and reaches every client over the feed.
func (h *handlers) assistReply(c *gin.Context) {
	if h.deps.Assist == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant disabled"})
		return
	}
	msg, err := h.deps.Assist.Respond(c.Request.Context(), domain.MeetingID(c.Param("id")))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("assist reply")
		c.JSON(http.StatusBadGateway, gin.H{"error": "assistant failed"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

type endMeetingRequest struct {
	HostID string `json:"host_id" binding:"required"`
}

// endMeeting closes a meeting over REST. The change feed handles fanout and
// live-session eviction.
func (h *handlers) endMeeting(c *gin.Context) {
	var req endMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing host_id"})
		return
	}

	id := domain.MeetingID(c.Param("id"))
	m, err := h.deps.Store.GetMeeting(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		return
	}
	if m.HostID != domain.UserID(req.HostID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the host may end the meeting"})
		return
	}
	if err := h.deps.Store.EndMeeting(c.Request.Context(), id, time.Now()); err != nil {
		if errors.Is(err, meeting.ErrMeetingEnded) {
			c.JSON(http.StatusGone, gin.H{"error": "meeting already ended"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "end failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type roomTokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
	RoomID string `json:"room_id" binding:"required"`
}

type roomTokenResponse struct {
	Token string `json:"token"`
	AppID string `json:"app_id"`
}

func (h *handlers) issueRoomToken(c *gin.Context) {
	var req roomTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id or room_id"})
		return
	}

	// Tokens are only minted for meetings that exist and have not ended.
	m, err := h.deps.Store.GetMeeting(c.Request.Context(), domain.MeetingID(req.RoomID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		return
	}
	if m.Ended() {
		c.JSON(http.StatusGone, gin.H{"error": "meeting ended"})
		return
	}

	tok, err := h.deps.Tokens.RoomToken(req.UserID, req.RoomID)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("issue room token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token mint failed"})
		return
	}
	c.JSON(http.StatusOK, roomTokenResponse{Token: tok, AppID: h.deps.Tokens.AppID})
}
