package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/middleware"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/services"
)

// ScheduleHandler handles schedule and seat reservation endpoints
type ScheduleHandler struct {
	orchestrator *services.BookingOrchestratorService
	logger       *logrus.Logger
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(orchestrator *services.BookingOrchestratorService, logger *logrus.Logger) *ScheduleHandler {
	return &ScheduleHandler{orchestrator: orchestrator, logger: logger}
}

// SeatsRequest is the body of reserve and release calls
type SeatsRequest struct {
	SeatNumbers []int `json:"seat_numbers" binding:"required"`
}

// CreateSchedule registers a bookable schedule
// POST /api/v1/schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req models.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	schedule, err := h.orchestrator.RegisterSchedule(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

// GetSchedule returns a schedule
// GET /api/v1/schedules/:id
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.orchestrator.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// GetSeatMap returns locked and free seats of a schedule
// GET /api/v1/schedules/:id/seats
func (h *ScheduleHandler) GetSeatMap(c *gin.Context) {
	seatMap, err := h.orchestrator.SeatMap(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// owners stay private; clients only see which seats are taken
	locked := make([]gin.H, 0, len(seatMap.Locked))
	for _, l := range seatMap.Locked {
		locked = append(locked, gin.H{
			"seat_number": l.SeatNumber,
			"permanent":   l.IsPermanent(),
			"mine":        l.OwnedBy(c.GetHeader(middleware.SessionHeader)),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"schedule": seatMap.Schedule,
		"locked":   locked,
		"free":     seatMap.Free,
	})
}

// ReserveSeats locks seats for the calling session, all or none
// POST /api/v1/schedules/:id/seats/reserve
func (h *ScheduleHandler) ReserveSeats(c *gin.Context) {
	var req SeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	reservation, err := h.orchestrator.ReserveSeats(c.Request.Context(), c.Param("id"), req.SeatNumbers, middleware.GetSessionID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"schedule_id":  reservation.ScheduleID,
		"seat_numbers": reservation.Seats,
		"expires_at":   reservation.ExpiresAt,
	})
}

// ReleaseSeats drops the calling session's locks on seats
// POST /api/v1/schedules/:id/seats/release
func (h *ScheduleHandler) ReleaseSeats(c *gin.Context) {
	var req SeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.orchestrator.ReleaseSeats(c.Request.Context(), c.Param("id"), req.SeatNumbers, middleware.GetSessionID(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": req.SeatNumbers})
}

// RenewSeats extends every live lock of the calling session
// POST /api/v1/seats/renew
func (h *ScheduleHandler) RenewSeats(c *gin.Context) {
	n, err := h.orchestrator.RenewSeats(c.Request.Context(), middleware.GetSessionID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"renewed": n})
}
