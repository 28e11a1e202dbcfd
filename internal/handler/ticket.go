package handler

import (
	"context"        // contexts passed down to the service layer
	"errors"         // errors.Is comparisons against service sentinels
	"net/http"       // HTTP status codes
	"strconv"        // parsing query parameters
	"time"           // timestamp formatting in DTOs

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/lane-dispatch/internal/model"
	"github.com/iliyamo/lane-dispatch/internal/service"
)

// Dispatcher is the slice of the queue service the HTTP layer consumes.
// Declaring it on the consumer side keeps handlers testable against a
// stub without standing up a store.
type Dispatcher interface {
	Enqueue(ctx context.Context, queueID int64, ext service.ExternalUser) (*model.Ticket, bool, error)
	Leave(ctx context.Context, externalID int64) (bool, error)
	Position(ctx context.Context, externalID int64) (*model.Ticket, int, error)
	ListWaiting(ctx context.Context, queueID int64, limit int) ([]model.Ticket, error)
	CallNext(ctx context.Context, queueID int64) (*model.Ticket, error)
	MarkNoShow(ctx context.Context, queueID int64) (*model.Ticket, error)
	ServeConfirmed(ctx context.Context, queueID int64) (*model.Ticket, error)
	ConfirmByToken(ctx context.Context, token string) (*model.Ticket, error)
	DayStats(ctx context.Context, day time.Time, queueID *int64) (service.Stats, error)
}

// ticketResp is the JSON shape of a ticket across all endpoints.
// Transition timestamps and the token appear only once set.
type ticketResp struct {
	ID             int64      `json:"id"`
	QueueID        int64      `json:"queue_id"`
	UserID         int64      `json:"user_id"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	CalledAt       *time.Time `json:"called_at,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	ServedAt       *time.Time `json:"served_at,omitempty"`
	CanceledAt     *time.Time `json:"canceled_at,omitempty"`
	NoShowAt       *time.Time `json:"no_show_at,omitempty"`
	Token          *string    `json:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

func newTicketResp(t *model.Ticket) ticketResp {
	return ticketResp{
		ID:             t.ID,
		QueueID:        t.QueueID,
		UserID:         t.UserID,
		Status:         string(t.Status),
		CreatedAt:      t.CreatedAt,
		CalledAt:       t.CalledAt,
		ConfirmedAt:    t.ConfirmedAt,
		ServedAt:       t.ServedAt,
		CanceledAt:     t.CanceledAt,
		NoShowAt:       t.NoShowAt,
		Token:          t.Token,
		TokenExpiresAt: t.TokenExpiresAt,
	}
}

// TicketHandler serves the user-facing ticket operations.  The chat
// transport in front of these endpoints is trusted to vouch for the
// external user identity it forwards.
type TicketHandler struct {
	Svc Dispatcher
}

func NewTicketHandler(svc Dispatcher) *TicketHandler { return &TicketHandler{Svc: svc} }

type joinReq struct {
	QueueID        int64  `json:"queue_id"`
	ExternalUserID int64  `json:"external_user_id"`
	Address        string `json:"address"`
	Name           string `json:"name"`
}

type leaveReq struct {
	ExternalUserID int64 `json:"external_user_id"`
}

// Join handles POST /v1/tickets.  Joining while already holding an
// active ticket is not an error: the existing ticket comes back with
// 200 instead of 201 and nothing is created.
func (h *TicketHandler) Join(c echo.Context) error {
	var req joinReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.QueueID <= 0 || req.ExternalUserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "queue_id and external_user_id required"})
	}
	t, created, err := h.Svc.Enqueue(c.Request().Context(), req.QueueID, service.ExternalUser{
		ID:      req.ExternalUserID,
		Address: req.Address,
		Name:    req.Name,
	})
	if err != nil {
		if errors.Is(err, service.ErrQueueNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "queue not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{"ticket": newTicketResp(t), "created": created})
}

// Leave handles DELETE /v1/tickets/active.  It cancels the caller's
// active ticket; canceled=false means there was nothing to cancel.
func (h *TicketHandler) Leave(c echo.Context) error {
	var req leaveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ExternalUserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "external_user_id required"})
	}
	canceled, err := h.Svc.Leave(c.Request().Context(), req.ExternalUserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"canceled": canceled})
}

// Status handles GET /v1/tickets/active?external_user_id=.  For a
// WAITING ticket it reports the 1-based position in the lane; for other
// active states position is 0, meaning "not applicable".
func (h *TicketHandler) Status(c echo.Context) error {
	externalID, err := strconv.ParseInt(c.QueryParam("external_user_id"), 10, 64)
	if err != nil || externalID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "external_user_id required"})
	}
	t, pos, err := h.Svc.Position(c.Request().Context(), externalID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveTicket) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no active ticket"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket": newTicketResp(t), "position": pos})
}
