package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"inventory/internal/calendar"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
	"inventory/internal/services"
)

type availabilityCheckRequest struct {
	ResourceID string `json:"resourceId"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Quantity   int    `json:"quantity"`
}

type dayUpdateRequest struct {
	TotalCapacity      *int   `json:"totalCapacity"`
	PriceOverride      *int64 `json:"priceOverride"`
	ClearPriceOverride bool   `json:"clearPriceOverride"`
	Blocked            *bool  `json:"blocked"`
}

type calendarResponse struct {
	ResourceID string                    `json:"resourceId"`
	StartDate  string                    `json:"startDate"`
	EndDate    string                    `json:"endDate"`
	Dates      []models.DateAvailability `json:"dates"`
}

// parseStay reads a check-in/check-out pair. A missing endDate means a single day,
// which is what per-departure resources use.
func parseStay(start, end string) (calendar.Range, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" {
		return calendar.Range{}, domain.InvalidRangeError{Field: "startDate", Msg: "wajib diisi"}
	}
	if end == "" {
		day, err := calendar.ParseDay(start)
		if err != nil {
			return calendar.Range{}, domain.InvalidRangeError{Field: "startDate", Msg: err.Error()}
		}
		return calendar.Single(day), nil
	}
	return calendar.ParseRange(start, end)
}

// POST /availability/check
func (h *Inventory) CheckAvailability(c *gin.Context) {
	var req availabilityCheckRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	stay, err := parseStay(req.StartDate, req.EndDate)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	result, err := h.Availability.CheckAvailability(c.Request.Context(), strings.TrimSpace(req.ResourceID), stay, req.Quantity)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GET /availability/:resourceId?startDate=&endDate=
func (h *Inventory) GetCalendar(c *gin.Context) {
	stay, err := parseStay(c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	resourceID := strings.TrimSpace(c.Param("resourceId"))
	days, err := h.Availability.Calendar(c.Request.Context(), resourceID, stay)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, calendarResponse{
		ResourceID: resourceID,
		StartDate:  calendar.FormatDay(stay.Start),
		EndDate:    calendar.FormatDay(stay.End),
		Dates:      days,
	})
}

// PUT /availability/:resourceId/:date
func (h *Inventory) UpdateDay(c *gin.Context) {
	day, err := calendar.ParseDay(c.Param("date"))
	if err != nil {
		RespondDomainError(c, domain.InvalidRangeError{Field: "date", Msg: err.Error()})
		return
	}
	var req dayUpdateRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	out, err := h.Availability.UpdateDay(c.Request.Context(), strings.TrimSpace(c.Param("resourceId")), day, services.DayUpdate{
		TotalCapacity:      req.TotalCapacity,
		PriceOverride:      req.PriceOverride,
		ClearPriceOverride: req.ClearPriceOverride,
		Blocked:            req.Blocked,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
