package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lane-dispatch/internal/service"
)

// ConfirmHandler serves POST /v1/confirm, the one entry point reachable
// from outside the chat transport (the companion scanner posts here).
// The route sits behind JWTAuth + RequireRole(OPERATOR), so by the time
// Confirm runs the caller is a certified operator.
type ConfirmHandler struct {
	Svc Dispatcher
}

func NewConfirmHandler(svc Dispatcher) *ConfirmHandler { return &ConfirmHandler{Svc: svc} }

type confirmReq struct {
	Token string `json:"token"`
}

// Confirm flips the CALLED ticket holding the token to CONFIRMED.  An
// unknown token, a ticket no longer CALLED and an expired token all get
// the same 404 body; the endpoint deliberately does not reveal which.
func (h *ConfirmHandler) Confirm(c echo.Context) error {
	var req confirmReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	t, err := h.Svc.ConfirmByToken(c.Request().Context(), req.Token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found / expired / invalid state"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ok":        true,
		"ticket_id": t.ID,
		"queue_id":  t.QueueID,
		"status":    string(t.Status),
	})
}
