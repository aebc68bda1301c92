package calllog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger.With("handler", "calllog")}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.History)
	g.GET("/metrics", h.GetMetrics)
	g.GET("/summary", h.GetSummary)
}

func ToResponse(r *Record) dto.CallRecordResponse {
	return dto.CallRecordResponse{
		CallID:        r.CallID,
		CallerID:      r.CallerID,
		CalleeID:      r.CalleeID,
		AppointmentID: r.AppointmentID,
		Media:         r.Media,
		EndReason:     r.EndReason,
		Answered:      r.Answered(),
		DurationSecs:  int64(r.Duration().Seconds()),
		StartedAt:     shared.FormatTime(r.StartedAt),
		EndedAt:       shared.FormatTime(r.EndedAt),
	}
}

func metricsToResponse(m *Metrics) dto.CallMetricsResponse {
	return dto.CallMetricsResponse{
		Date:         m.Date,
		Hour:         m.Hour,
		Calls:        m.Calls,
		Answered:     m.Answered,
		Missed:       m.Missed,
		Rejected:     m.Rejected,
		DurationSecs: m.DurationSecs,
	}
}

// @Summary      Call history
// @Description  Most recent calls the user took part in
// @Tags         calls
// @Produce      json
// @Param        limit  query     int  false  "Max records (default 20, max 200)"
// @Success      200    {object}  dto.CallHistoryResponse
// @Failure      401    {object}  shared.APIError
// @Security     BearerAuth
// @Router       /calls [get]
func (h *Handler) History(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	limit, _ := shared.Pagination(c, 20, historySize)

	records, err := h.store.History(c.Request().Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to load call history", "error", err, "user_id", userID)
		return shared.InternalError("history_failed", "failed to load call history")
	}

	calls := make([]dto.CallRecordResponse, len(records))
	for i, r := range records {
		calls[i] = ToResponse(r)
	}
	return c.JSON(http.StatusOK, dto.CallHistoryResponse{Calls: calls})
}

// @Summary      Hourly call metrics
// @Tags         calls
// @Produce      json
// @Param        hours  query     int  false  "Hours to look back (default 24, max 168)"
// @Success      200    {object}  dto.CallMetricsListResponse
// @Security     BearerAuth
// @Router       /calls/metrics [get]
func (h *Handler) GetMetrics(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	hours := 24
	if v := c.QueryParam("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return shared.BadRequest("invalid_hours", "hours must be a positive integer")
		}
		hours = min(parsed, 168)
	}

	metrics, err := h.store.GetMetrics(c.Request().Context(), userID, hours)
	if err != nil {
		h.logger.Error("failed to load call metrics", "error", err, "user_id", userID)
		return shared.InternalError("metrics_failed", "failed to load call metrics")
	}

	out := make([]dto.CallMetricsResponse, len(metrics))
	for i, m := range metrics {
		out[i] = metricsToResponse(m)
	}
	return c.JSON(http.StatusOK, dto.CallMetricsListResponse{UserID: userID, Hours: hours, Metrics: out})
}

// @Summary      Seven day call summary
// @Tags         calls
// @Produce      json
// @Success      200  {object}  dto.CallSummaryResponse
// @Security     BearerAuth
// @Router       /calls/summary [get]
func (h *Handler) GetSummary(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	sum, err := h.store.GetSummary(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("failed to load call summary", "error", err, "user_id", userID)
		return shared.InternalError("summary_failed", "failed to load call summary")
	}

	return c.JSON(http.StatusOK, dto.CallSummaryResponse{
		UserID:       sum.UserID,
		Period:       sum.Period,
		TotalCalls:   sum.TotalCalls,
		Answered:     sum.Answered,
		Missed:       sum.Missed,
		Rejected:     sum.Rejected,
		DurationSecs: sum.DurationSecs,
		AnswerRate:   sum.AnswerRate(),
	})
}
