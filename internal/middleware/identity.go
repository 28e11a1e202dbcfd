package middleware

// identity.go holds helpers shared across middleware files.  callerID
// identifies the requester for rate-limit bucketing: the operator id
// when JWTAuth ran earlier in the chain, otherwise "anon".

import "github.com/labstack/echo/v4"

// callerID returns the authenticated operator id or "anon".
func callerID(c echo.Context) string {
	if s, ok := c.Get("operator_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}
