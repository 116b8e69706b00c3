package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"archean-status-relay/internal/model"
	"archean-status-relay/internal/waitlist"
)

type reminderResponse struct {
	RequesterID       string    `json:"requester_id"`
	TargetPlayerCount int       `json:"player_count"`
	FallbackLocation  string    `json:"fallback_location,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toReminderResponse(r model.Reminder) reminderResponse {
	return reminderResponse{
		RequesterID:       r.RequesterID,
		TargetPlayerCount: r.TargetPlayerCount,
		FallbackLocation:  r.FallbackLocation,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// reminderError maps waiting list errors onto HTTP statuses.
func reminderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, waitlist.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, waitlist.ErrAlreadyAtTarget), errors.Is(err, waitlist.ErrDuplicateTarget):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, waitlist.ErrNotWaiting):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, waitlist.ErrServerOffline):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("reminder request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type putReminderRequest struct {
	RequesterID      string `json:"requester_id" binding:"required,max=64"`
	PlayerCount      *int   `json:"player_count" binding:"required"`
	FallbackLocation string `json:"fallback_location" binding:"max=128"`
}

// PutReminder creates or retargets the requester's reminder.
func (h *Handler) PutReminder(c *gin.Context) {
	var req putReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var view *waitlist.ServerView
	if state := h.snapshots.Get(); state.Online() {
		view = &waitlist.ServerView{Players: state.Snapshot.Players, MaxPlayers: state.Snapshot.MaxPlayers}
	}

	r, created, err := h.reminders.RequestReminder(c.Request.Context(), req.RequesterID, *req.PlayerCount, req.FallbackLocation, view)
	if err != nil {
		reminderError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, toReminderResponse(r))
}

// GetReminder returns the requester's outstanding reminder.
func (h *Handler) GetReminder(c *gin.Context) {
	requesterID := c.Query("requester_id")
	if requesterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requester_id is required"})
		return
	}

	r, err := h.reminders.Lookup(c.Request.Context(), requesterID)
	if err != nil {
		reminderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReminderResponse(r))
}

type deleteReminderRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
}

// DeleteReminder cancels the requester's reminder and returns what was cancelled.
func (h *Handler) DeleteReminder(c *gin.Context) {
	var req deleteReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	r, err := h.reminders.CancelReminder(c.Request.Context(), req.RequesterID)
	if err != nil {
		reminderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReminderResponse(r))
}
