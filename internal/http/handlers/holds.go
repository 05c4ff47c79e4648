package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"inventory/internal/calendar"
	"inventory/internal/domain/models"
	"inventory/internal/services"
	"inventory/internal/utils"
)

const holdTokenHeader = "X-Hold-Token"

type placeHoldRequest struct {
	ResourceID     string `json:"resourceId"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	Quantity       int    `json:"quantity"`
	HoldTTLSeconds int64  `json:"holdTtlSeconds"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type HoldDTO struct {
	HoldID         string  `json:"holdId"`
	ResourceID     string  `json:"resourceId"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	Quantity       int     `json:"quantity"`
	Status         string  `json:"status"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	ExpiresAt      *string `json:"expiresAt"`
	UpdatedAt      string  `json:"updatedAt"`
	HoldToken      string  `json:"holdToken,omitempty"`
}

func toHoldDTO(h models.Hold) HoldDTO {
	dto := HoldDTO{
		HoldID:         h.ID,
		ResourceID:     h.ResourceID,
		StartDate:      calendar.FormatDay(h.StartDate),
		EndDate:        calendar.FormatDay(h.EndDate),
		Quantity:       h.Quantity,
		Status:         string(h.Status),
		IdempotencyKey: h.IdempotencyKey,
		CreatedAt:      formatInstant(h.CreatedAt),
		UpdatedAt:      formatInstant(h.UpdatedAt),
	}
	if h.ExpiresAt != nil {
		s := formatInstant(*h.ExpiresAt)
		dto.ExpiresAt = &s
	}
	return dto
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// POST /holds
func (h *Inventory) PlaceHold(c *gin.Context) {
	var req placeHoldRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	stay, err := parseStay(req.StartDate, req.EndDate)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	idemKey := strings.TrimSpace(req.IdempotencyKey)
	if idemKey == "" {
		idemKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	hold, err := h.Holds.PlaceHold(c.Request.Context(), services.PlaceHoldInput{
		ResourceID:     req.ResourceID,
		Range:          stay,
		Quantity:       req.Quantity,
		TTL:            time.Duration(req.HoldTTLSeconds) * time.Second,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	dto := toHoldDTO(hold)
	if h.Tokens != nil {
		token, err := h.Tokens.Issue(hold)
		if err != nil {
			// The hold stands without a receipt.
			utils.LogEvent(utils.RequestID(c.Request.Context()), "hold", "issue_token_failed", "hold_id="+hold.ID+" err="+err.Error())
		} else {
			dto.HoldToken = token
		}
	}
	c.JSON(http.StatusCreated, dto)
}

// GET /holds/:id
func (h *Inventory) GetHold(c *gin.Context) {
	hold, err := h.Holds.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHoldDTO(hold))
}

// POST /holds/:id/commit
func (h *Inventory) CommitHold(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if !h.verifyToken(c, id) {
		return
	}
	hold, err := h.Holds.Commit(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHoldDTO(hold))
}

// POST /holds/:id/release
func (h *Inventory) ReleaseHold(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if !h.verifyToken(c, id) {
		return
	}
	hold, err := h.Holds.Release(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHoldDTO(hold))
}

// verifyToken checks a presented receipt. Requests without one are accepted.
func (h *Inventory) verifyToken(c *gin.Context, holdID string) bool {
	token := strings.TrimSpace(c.GetHeader(holdTokenHeader))
	if token == "" {
		return true
	}
	if err := h.Tokens.Verify(token, holdID); err != nil {
		RespondDomainError(c, err)
		return false
	}
	return true
}
