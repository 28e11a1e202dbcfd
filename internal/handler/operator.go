package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lane-dispatch/internal/model"
	"github.com/iliyamo/lane-dispatch/internal/service"
)

// OperatorHandler serves the operator console: reviewing the lane,
// dispatching the next ticket, resolving absences, serving confirmed
// tickets and reading day statistics.  JWT authentication and the
// OPERATOR role check run in middleware before any of these methods.
// Every "nothing to do" path answers with an explicit message so an
// operator always gets positive confirmation of the outcome.
type OperatorHandler struct {
	Svc      Dispatcher
	StatsLoc *time.Location // zone in which the day parameter is interpreted
}

func NewOperatorHandler(svc Dispatcher, statsLoc *time.Location) *OperatorHandler {
	if statsLoc == nil {
		statsLoc = time.UTC
	}
	return &OperatorHandler{Svc: svc, StatsLoc: statsLoc}
}

func queueIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid queue id")
	}
	return id, nil
}

// Waiting handles GET /v1/queues/:id/waiting?limit= and returns the
// lane's WAITING tickets in FIFO order.
func (h *OperatorHandler) Waiting(c echo.Context) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid queue id"})
	}
	limit := 0 // 0 lets the service apply its default
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}
	tickets, err := h.Svc.ListWaiting(c.Request().Context(), queueID, limit)
	if err != nil {
		if errors.Is(err, service.ErrQueueNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "queue not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
	}
	resp := make([]ticketResp, 0, len(tickets))
	for i := range tickets {
		resp = append(resp, newTicketResp(&tickets[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"waiting": resp})
}

// CallNext handles POST /v1/queues/:id/call-next: the longest-waiting
// ticket becomes CALLED and its fresh confirmation token is returned so
// the console can relay it.
func (h *OperatorHandler) CallNext(c echo.Context) error {
	return h.advance(c, h.Svc.CallNext, service.ErrQueueEmpty, "queue empty")
}

// NoShow handles POST /v1/queues/:id/no-show: the oldest CALLED ticket
// is resolved to NO_SHOW.
func (h *OperatorHandler) NoShow(c echo.Context) error {
	return h.advance(c, h.Svc.MarkNoShow, service.ErrNoneCalled, "none called")
}

// Serve handles POST /v1/queues/:id/serve: the oldest CONFIRMED ticket
// is resolved to SERVED.
func (h *OperatorHandler) Serve(c echo.Context) error {
	return h.advance(c, h.Svc.ServeConfirmed, service.ErrNoneConfirmed, "none confirmed")
}

// advance shares the shape of the three dispatch operations: run the
// transition, and when its sentinel says there was no candidate answer
// 200 with a null ticket and the message rather than silence.
func (h *OperatorHandler) advance(c echo.Context, op func(ctx context.Context, queueID int64) (*model.Ticket, error), empty error, message string) error {
	queueID, err := queueIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid queue id"})
	}
	t, err := op(c.Request().Context(), queueID)
	if err != nil {
		if errors.Is(err, empty) {
			return c.JSON(http.StatusOK, echo.Map{"ticket": nil, "message": message})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket": newTicketResp(t)})
}

// Stats handles GET /v1/stats?day=YYYY-MM-DD&queue_id=.  Day defaults to
// today in the configured reference zone; queue_id is optional.
func (h *OperatorHandler) Stats(c echo.Context) error {
	day := time.Now().In(h.StatsLoc)
	if raw := c.QueryParam("day"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.StatsLoc)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid day, want YYYY-MM-DD"})
		}
		day = parsed
	}
	var queueID *int64
	if raw := c.QueryParam("queue_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid queue_id"})
		}
		queueID = &id
	}
	stats, err := h.Svc.DayStats(c.Request().Context(), day, queueID)
	if err != nil {
		if errors.Is(err, service.ErrQueueNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "queue not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
	}
	return c.JSON(http.StatusOK, stats)
}
