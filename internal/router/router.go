package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/lane-dispatch/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/lane-dispatch/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// The /healthz endpoint can be used by load balancers or monitoring
	// systems to verify that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the operator login route.  Login is the only
// unauthenticated auth operation: operators are provisioned through
// configuration, so there is no register or refresh flow.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login)
}

// RegisterTickets registers the user-facing ticket routes.  These sit in
// front of the chat transport, which vouches for the external user
// identity it forwards, so no JWT applies here; the token bucket keeps
// a single chatty user from hammering the lane.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, rateLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/tickets")
	if rateLimit != nil {
		g.Use(rateLimit)
	}
	g.POST("", t.Join)
	g.DELETE("/active", t.Leave)
	g.GET("/active", t.Status)
}

// RegisterOperator registers the operator console and the confirmation
// endpoint.  Every route in this group requires a valid access token
// carrying the OPERATOR role.  The response cache applies only to the
// two informational reads (waiting list and stats); dispatch mutations
// must always hit the store.
func RegisterOperator(e *echo.Echo, o *handler.OperatorHandler, cf *handler.ConfirmHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("OPERATOR"))

	if cache == nil {
		cache = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g.GET("/queues/:id/waiting", o.Waiting, cache)
	g.GET("/stats", o.Stats, cache)

	g.POST("/queues/:id/call-next", o.CallNext)
	g.POST("/queues/:id/no-show", o.NoShow)
	g.POST("/queues/:id/serve", o.Serve)
	g.POST("/confirm", cf.Confirm)
}
