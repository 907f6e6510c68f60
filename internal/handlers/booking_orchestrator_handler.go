package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/middleware"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/services"
	"github.com/smarttransit/seat-booking-core/internal/utils"
)

// BookingOrchestratorHandler handles booking and payment endpoints
type BookingOrchestratorHandler struct {
	orchestratorService *services.BookingOrchestratorService
	logger              *logrus.Logger
}

// NewBookingOrchestratorHandler creates a new BookingOrchestratorHandler
func NewBookingOrchestratorHandler(
	orchestratorService *services.BookingOrchestratorService,
	logger *logrus.Logger,
) *BookingOrchestratorHandler {
	return &BookingOrchestratorHandler{
		orchestratorService: orchestratorService,
		logger:              logger,
	}
}

// CreateBookingRequest is the body of POST /bookings
type CreateBookingRequest struct {
	ScheduleID   string             `json:"schedule_id" binding:"required"`
	SeatNumbers  []int              `json:"seat_numbers" binding:"required"`
	Passengers   []models.Passenger `json:"passengers" binding:"required"`
	ContactEmail string             `json:"contact_email"`
	ContactPhone string             `json:"contact_phone"`
}

// ConfirmBookingRequest is the body of a manual confirmation
type ConfirmBookingRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

// CancelBookingRequest is the optional body of a cancellation
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// ============================================================================
// CREATE BOOKING - POST /api/v1/bookings
// ============================================================================

// CreateBooking turns the session's seat locks into a pending booking
// @Summary Create booking
// @Description Converts held seats into a pending booking with a payment hold
// @Tags Bookings
// @Accept json
// @Produce json
// @Param X-Session-ID header string true "Session ID"
// @Param request body CreateBookingRequest true "Booking request"
// @Success 201 {object} models.Booking
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 409 {object} map[string]interface{} "Seats not held by this session"
// @Router /bookings [post]
func (h *BookingOrchestratorHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	booking, err := h.orchestratorService.CreateBooking(c.Request.Context(), services.CreateBookingParams{
		ScheduleID:     req.ScheduleID,
		SeatNumbers:    req.SeatNumbers,
		Passengers:     req.Passengers,
		OwnerSessionID: middleware.GetSessionID(c),
		CustomerID:     middleware.CustomerID(c),
		ContactEmail:   req.ContactEmail,
		ContactPhone:   req.ContactPhone,
		Device:         utils.ParseDevice(c.Request.UserAgent()),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// ListSessionBookings lists the bookings made under the calling session
// GET /api/v1/bookings
func (h *BookingOrchestratorHandler) ListSessionBookings(c *gin.Context) {
	bookings, err := h.orchestratorService.ListBookingsForSession(c.Request.Context(), middleware.GetSessionID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// ============================================================================
// LOOKUP - GET /api/v1/bookings/:id, GET /api/v1/bookings/reference/:reference
// ============================================================================

// GetBooking returns a booking by ID
func (h *BookingOrchestratorHandler) GetBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.orchestratorService.GetBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// GetBookingByReference returns a booking by its customer facing reference
func (h *BookingOrchestratorHandler) GetBookingByReference(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		badRequest(c, "reference is required")
		return
	}

	booking, err := h.orchestratorService.GetBookingByReference(c.Request.Context(), reference)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// CONFIRM - POST /api/v1/bookings/:id/confirm
// ============================================================================

// ConfirmBooking confirms a pending booking against a payment settled
// outside the payment session flow. Staff only.
// @Summary Confirm booking
// @Tags Bookings
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 409 {object} map[string]interface{} "Booking not pending"
// @Failure 410 {object} map[string]interface{} "Hold expired"
// @Router /bookings/{id}/confirm [post]
func (h *BookingOrchestratorHandler) ConfirmBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req ConfirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	booking, err := h.orchestratorService.ConfirmBooking(c.Request.Context(), id, req.PaymentReference)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// CANCEL - POST /api/v1/bookings/:id/cancel
// ============================================================================

// CancelBooking cancels a pending or confirmed booking and returns the refund due
func (h *BookingOrchestratorHandler) CancelBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.orchestratorService.AuthorizeBooking(c.Request.Context(), id, callerOf(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req CancelBookingRequest
	// body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request: "+err.Error())
			return
		}
	}

	booking, refund, err := h.orchestratorService.CancelBooking(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking": booking,
		"refund":  refund,
	})
}

// GetRefundQuote previews what a cancellation right now would refund
// GET /api/v1/bookings/:id/refund-quote
func (h *BookingOrchestratorHandler) GetRefundQuote(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.orchestratorService.AuthorizeBooking(c.Request.Context(), id, callerOf(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	quote, err := h.orchestratorService.QuoteRefund(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// ============================================================================
// PAYMENT SESSIONS
// ============================================================================

// CreatePaymentSession opens a payment session for a pending booking
// POST /api/v1/bookings/:id/payments
func (h *BookingOrchestratorHandler) CreatePaymentSession(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.orchestratorService.AuthorizeBooking(c.Request.Context(), id, callerOf(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	session, err := h.orchestratorService.CreatePaymentSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// GetPaymentSession returns a payment session
// GET /api/v1/payments/:id
func (h *BookingOrchestratorHandler) GetPaymentSession(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.orchestratorService.AuthorizePayment(c.Request.Context(), id, callerOf(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	session, err := h.orchestratorService.GetPaymentSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// ProcessPayment charges the card and confirms the booking on approval
// @Summary Process payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment session ID"
// @Param request body models.CardDetails true "Card details"
// @Success 200 {object} models.PaymentResult
// @Failure 400 {object} map[string]interface{} "Invalid card"
// @Failure 402 {object} map[string]interface{} "Declined"
// @Failure 410 {object} map[string]interface{} "Session or hold expired"
// @Router /payments/{id}/process [post]
func (h *BookingOrchestratorHandler) ProcessPayment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.orchestratorService.AuthorizePayment(c.Request.Context(), id, callerOf(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	var card models.CardDetails
	if err := c.ShouldBindJSON(&card); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.orchestratorService.ProcessPayment(c.Request.Context(), id, card)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelPaymentSession abandons a payment and cancels its booking
// POST /api/v1/payments/:id/cancel
func (h *BookingOrchestratorHandler) CancelPaymentSession(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.orchestratorService.AuthorizePayment(c.Request.Context(), id, callerOf(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	session, err := h.orchestratorService.CancelPaymentSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
