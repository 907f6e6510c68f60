package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/middleware"
	"github.com/smarttransit/seat-booking-core/internal/services"
	"github.com/smarttransit/seat-booking-core/pkg/jwt"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// RegisterRoutes mounts the booking API on api. A nil limiter disables
// reservation throttling.
func RegisterRoutes(
	api *gin.RouterGroup,
	orchestrator *services.BookingOrchestratorService,
	limiter *services.RateLimitService,
	jwtService *jwt.Service,
	authRequired bool,
	logger *logrus.Logger,
) {
	scheduleHandler := NewScheduleHandler(orchestrator, logger)
	bookingHandler := NewBookingOrchestratorHandler(orchestrator, logger)

	auth := middleware.OptionalAuthMiddleware(jwtService, logger)
	if authRequired {
		auth = middleware.AuthMiddleware(jwtService, logger)
	}
	staffOnly := []gin.HandlerFunc{middleware.AuthMiddleware(jwtService, logger), middleware.RequireRole(RoleStaff, RoleAdmin)}
	// owner checks run in the handlers against the session or the customer
	owner := []gin.HandlerFunc{middleware.OptionalSession(), middleware.OptionalAuthMiddleware(jwtService, logger)}

	schedules := api.Group("/schedules")
	{
		schedules.POST("", append(staffOnly, scheduleHandler.CreateSchedule)...)
		schedules.GET("/:id", scheduleHandler.GetSchedule)
		schedules.GET("/:id/seats", scheduleHandler.GetSeatMap)
		schedules.POST("/:id/seats/reserve", middleware.RequireSession(), middleware.ReservationRateLimit(limiter), scheduleHandler.ReserveSeats)
		schedules.POST("/:id/seats/release", middleware.RequireSession(), scheduleHandler.ReleaseSeats)
	}

	api.POST("/seats/renew", middleware.RequireSession(), scheduleHandler.RenewSeats)

	bookings := api.Group("/bookings")
	{
		bookings.POST("", middleware.RequireSession(), auth, bookingHandler.CreateBooking)
		bookings.GET("", middleware.RequireSession(), bookingHandler.ListSessionBookings)
		bookings.GET("/reference/:reference", bookingHandler.GetBookingByReference)
		bookings.GET("/:id", bookingHandler.GetBooking)
		bookings.GET("/:id/refund-quote", withOwner(owner, bookingHandler.GetRefundQuote)...)
		bookings.POST("/:id/cancel", withOwner(owner, bookingHandler.CancelBooking)...)
		bookings.POST("/:id/confirm", append(staffOnly, bookingHandler.ConfirmBooking)...)
		bookings.POST("/:id/payments", withOwner(owner, bookingHandler.CreatePaymentSession)...)
	}

	payments := api.Group("/payments")
	{
		payments.GET("/:id", withOwner(owner, bookingHandler.GetPaymentSession)...)
		payments.POST("/:id/process", withOwner(owner, bookingHandler.ProcessPayment)...)
		payments.POST("/:id/cancel", withOwner(owner, bookingHandler.CancelPaymentSession)...)
	}
}

func withOwner(owner []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	return append(append([]gin.HandlerFunc{}, owner...), h)
}
