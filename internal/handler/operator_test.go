package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lane-dispatch/internal/model"
	"github.com/iliyamo/lane-dispatch/internal/service"
)

func doQueueOp(t *testing.T, h echo.HandlerFunc, method, target, queueID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(queueID)
	require.NoError(t, h(c))
	return rec
}

func calledTicket(id int64) *model.Ticket {
	tk := waitingTicket(id)
	tk.Status = model.StatusCalled
	now := tk.CreatedAt.Add(time.Minute)
	tk.CalledAt = &now
	token := "aabbcc"
	tk.Token = &token
	exp := now.Add(15 * time.Minute)
	tk.TokenExpiresAt = &exp
	return tk
}

func TestWaitingList(t *testing.T) {
	svc := &stubDispatcher{listWaiting: func(queueID int64, limit int) ([]model.Ticket, error) {
		assert.Equal(t, int64(1), queueID)
		assert.Equal(t, 5, limit)
		return []model.Ticket{*waitingTicket(1), *waitingTicket(2)}, nil
	}}
	rec := doQueueOp(t, NewOperatorHandler(svc, time.UTC).Waiting, http.MethodGet, "/v1/queues/1/waiting?limit=5", "1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"waiting":[`)
}

func TestWaitingUnknownQueue(t *testing.T) {
	svc := &stubDispatcher{listWaiting: func(int64, int) ([]model.Ticket, error) {
		return nil, service.ErrQueueNotFound
	}}
	rec := doQueueOp(t, NewOperatorHandler(svc, time.UTC).Waiting, http.MethodGet, "/v1/queues/9/waiting", "9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWaitingInvalidQueueID(t *testing.T) {
	h := NewOperatorHandler(&stubDispatcher{}, time.UTC)
	rec := doQueueOp(t, h.Waiting, http.MethodGet, "/v1/queues/abc/waiting", "abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWaitingRejectsBadLimit(t *testing.T) {
	h := NewOperatorHandler(&stubDispatcher{}, time.UTC)
	for _, raw := range []string{"abc", "-1"} {
		rec := doQueueOp(t, h.Waiting, http.MethodGet, "/v1/queues/1/waiting?limit="+raw, "1")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", raw)
	}
}

func TestWaitingOmittedLimitFallsToDefault(t *testing.T) {
	svc := &stubDispatcher{listWaiting: func(_ int64, limit int) ([]model.Ticket, error) {
		assert.Equal(t, 0, limit, "zero lets the service pick its default")
		return nil, nil
	}}
	rec := doQueueOp(t, NewOperatorHandler(svc, time.UTC).Waiting, http.MethodGet, "/v1/queues/1/waiting", "1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCallNextReturnsTicketWithToken(t *testing.T) {
	svc := &stubDispatcher{callNext: func(queueID int64) (*model.Ticket, error) {
		assert.Equal(t, int64(1), queueID)
		return calledTicket(42), nil
	}}
	rec := doQueueOp(t, NewOperatorHandler(svc, time.UTC).CallNext, http.MethodPost, "/v1/queues/1/call-next", "1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"CALLED"`)
	assert.Contains(t, rec.Body.String(), `"token":"aabbcc"`)
}

func TestEmptyStagesAnswerWithMessage(t *testing.T) {
	h := NewOperatorHandler(&stubDispatcher{
		callNext: func(int64) (*model.Ticket, error) { return nil, service.ErrQueueEmpty },
		noShow:   func(int64) (*model.Ticket, error) { return nil, service.ErrNoneCalled },
		serve:    func(int64) (*model.Ticket, error) { return nil, service.ErrNoneConfirmed },
	}, time.UTC)

	cases := []struct {
		handler echo.HandlerFunc
		message string
	}{
		{h.CallNext, "queue empty"},
		{h.NoShow, "none called"},
		{h.Serve, "none confirmed"},
	}
	for _, tc := range cases {
		rec := doQueueOp(t, tc.handler, http.MethodPost, "/v1/queues/1/x", "1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"ticket":null`)
		assert.Contains(t, rec.Body.String(), tc.message)
	}
}

func TestStatsParsesDayAndQueue(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	svc := &stubDispatcher{dayStats: func(day time.Time, queueID *int64) (service.Stats, error) {
		assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, loc), day)
		require.NotNil(t, queueID)
		assert.Equal(t, int64(2), *queueID)
		return service.Stats{Created: 7, Confirmed: 3}, nil
	}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/stats?day=2025-06-01&queue_id=2", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, NewOperatorHandler(svc, loc).Stats(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"created":7`)
	assert.Contains(t, rec.Body.String(), `"confirmed":3`)
}

func TestStatsDefaultsToTodayAllLanes(t *testing.T) {
	svc := &stubDispatcher{dayStats: func(day time.Time, queueID *int64) (service.Stats, error) {
		assert.Nil(t, queueID)
		assert.WithinDuration(t, time.Now(), day, time.Minute)
		return service.Stats{}, nil
	}}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, NewOperatorHandler(svc, time.UTC).Stats(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsRejectsBadDay(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/stats?day=June-1st", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, NewOperatorHandler(&stubDispatcher{}, time.UTC).Stats(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmEndpoint(t *testing.T) {
	svc := &stubDispatcher{confirm: func(token string) (*model.Ticket, error) {
		if token != "livetoken" {
			return nil, service.ErrInvalidToken
		}
		tk := calledTicket(42)
		tk.Status = model.StatusConfirmed
		return tk, nil
	}}
	h := NewConfirmHandler(svc)

	rec := doJSON(t, h.Confirm, http.MethodPost, "/v1/confirm", `{"token":"livetoken"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
	assert.Contains(t, rec.Body.String(), `"status":"CONFIRMED"`)

	rec = doJSON(t, h.Confirm, http.MethodPost, "/v1/confirm", `{"token":"stale"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h.Confirm, http.MethodPost, "/v1/confirm", `{"token":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
