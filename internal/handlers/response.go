package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/middleware"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/services"
)

// errorStatus maps an engine error to its HTTP status and error code
func errorStatus(err error) (int, string) {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case models.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case models.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case models.IsConflict(err):
		return http.StatusConflict, "conflict"
	case models.IsInvalidTransition(err):
		return http.StatusConflict, "invalid_transition"
	case models.IsExpired(err):
		return http.StatusGone, "expired"
	case models.IsGatewayDeclined(err):
		return http.StatusPaymentRequired, "payment_declined"
	case models.IsNotCancellable(err):
		return http.StatusUnprocessableEntity, "not_cancellable"
	case errors.Is(err, models.ErrPaymentTimeout):
		return http.StatusGatewayTimeout, "payment_timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondError writes err as JSON. Unexpected errors are logged and their
// details hidden from the client.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(status, gin.H{"error": code, "message": "internal server error"})
		return
	}

	body := gin.H{"error": code, "message": err.Error()}
	if seats := models.ConflictSeats(err); len(seats) > 0 {
		body["seats"] = seats
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": message})
}

// callerOf identifies the session and customer behind a request
func callerOf(c *gin.Context) services.Caller {
	caller := services.Caller{SessionID: middleware.GetSessionID(c)}
	if customer, ok := middleware.GetCustomerContext(c); ok {
		caller.CustomerID = customer.CustomerID
		for _, role := range customer.Roles {
			if role == RoleStaff || role == RoleAdmin {
				caller.Staff = true
			}
		}
	}
	return caller
}

// uuidParam parses a UUID path parameter, writing a 400 when it is malformed
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
