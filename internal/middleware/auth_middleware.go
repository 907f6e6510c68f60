package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/pkg/jwt"
)

// CustomerContextKey is the key used to store the customer in Gin context
const CustomerContextKey = "customer"

// CustomerContext represents the authenticated customer
type CustomerContext struct {
	CustomerID string   `json:"customer_id"`
	Roles      []string `json:"roles"`
}

// AuthMiddleware rejects requests without a valid access token
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return authenticate(jwtService, logger, true)
}

// OptionalAuthMiddleware lets anonymous (guest) requests through but still
// rejects a bad token when one is sent
func OptionalAuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return authenticate(jwtService, logger, false)
}

func authenticate(jwtService *jwt.Service, logger *logrus.Logger, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if !required {
				c.Next()
				return
			}
			logger.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}).Warn("Auth failed: missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			logger.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}).Warn("Auth failed: invalid authorization format")
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}
		tokenString := strings.TrimSpace(parts[1])

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			entry := logger.WithError(err).WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()})
			if jwtService.IsTokenExpired(tokenString) {
				entry.Warn("Auth failed: token expired")
				abortUnauthorized(c, "token_expired", "Access token has expired. Please refresh your token.", "TOKEN_EXPIRED")
			} else {
				entry.Warn("Auth failed: invalid token")
				abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			}
			return
		}

		c.Set(CustomerContextKey, CustomerContext{
			CustomerID: claims.CustomerID,
			Roles:      claims.Roles,
		})
		c.Next()
	}
}

// RequireRole rejects customers holding none of roles. Must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		customer, exists := GetCustomerContext(c)
		if !exists {
			abortUnauthorized(c, "unauthorized", "Customer context not found", "MISSING_CUSTOMER_CONTEXT")
			return
		}

		for _, required := range roles {
			for _, role := range customer.Roles {
				if role == required {
					c.Next()
					return
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
	}
}

func abortUnauthorized(c *gin.Context, errCode, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   errCode,
		"message": message,
		"code":    code,
	})
}

// GetCustomerContext retrieves the customer from Gin context
func GetCustomerContext(c *gin.Context) (CustomerContext, bool) {
	value, exists := c.Get(CustomerContextKey)
	if !exists {
		return CustomerContext{}, false
	}

	customer, ok := value.(CustomerContext)
	if !ok {
		return CustomerContext{}, false
	}

	return customer, true
}

// CustomerID returns the authenticated customer's ID, or nil for a guest
func CustomerID(c *gin.Context) *string {
	customer, ok := GetCustomerContext(c)
	if !ok || customer.CustomerID == "" {
		return nil
	}
	id := customer.CustomerID
	return &id
}
