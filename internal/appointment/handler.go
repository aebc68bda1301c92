package appointment

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/coupon"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/validate"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/confirm", h.Confirm)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/complete", h.Complete)
}

func ToResponse(a *Appointment) dto.AppointmentResponse {
	return dto.AppointmentResponse{
		ID:           a.ID,
		CustomerID:   a.CustomerID,
		ExpertID:     a.ExpertID,
		ExpertUserID: a.ExpertUserID,
		StartAt:      shared.FormatTime(a.StartAt),
		EndAt:        shared.FormatTime(a.EndAt),
		Status:       string(a.Status),
		Price:        a.Price,
		Discount:     a.Discount,
		AmountDue:    a.AmountDue,
		Currency:     a.Currency,
		CouponCode:   a.CouponCode,
		Notes:        a.Notes,
		CancelReason: a.CancelReason,
		CompletedAt:  shared.FormatTimePtr(a.CompletedAt),
		CreatedAt:    shared.FormatTime(a.CreatedAt),
	}
}

func actorFrom(c echo.Context) (Actor, error) {
	claims := auth.GetClaims(c)
	if claims == nil {
		return Actor{}, shared.Unauthorized("auth_required", "authentication required")
	}
	return Actor{UserID: claims.UserID, IsAdmin: claims.HasRole(shared.RoleAdmin)}, nil
}

func (h *Handler) mapError(err error, op string) error {
	if he := coupon.HTTPError(err); he != nil {
		return he
	}

	switch {
	case errors.Is(err, shared.ErrNotFound):
		return shared.NotFound("appointment_not_found", "appointment not found")
	case errors.Is(err, shared.ErrForbidden):
		return shared.Forbidden("forbidden", "you are not allowed to perform this action")
	case errors.Is(err, shared.ErrInvalidState):
		return shared.Conflict("invalid_state", "appointment cannot change from its current status")
	case errors.Is(err, ErrSlotTaken):
		return shared.Conflict("slot_taken", "the requested time overlaps another appointment")
	case errors.Is(err, ErrOwnProfile):
		return shared.BadRequest("own_profile", "you cannot book your own expert profile")
	case errors.Is(err, ErrUnavailable):
		return shared.BadRequest("expert_unavailable", "expert is not accepting bookings")
	case errors.Is(err, ErrStartInPast):
		return shared.BadRequest("start_in_past", "start time must be in the future")
	case errors.Is(err, ErrInvalidDuration):
		return shared.BadRequest("invalid_duration", "duration must be between 15 and 180 whole minutes")
	case errors.Is(err, ErrNotStarted):
		return shared.BadRequest("not_started", "appointment has not started yet")
	}

	h.logger.Error("appointment operation failed", "error", err, "op", op)
	return shared.InternalError(op+"_failed", "failed to "+op+" appointment")
}

// @Summary      Book an appointment
// @Description  Pending until paid; free sessions are confirmed immediately
// @Tags         appointments
// @Accept       json
// @Produce      json
// @Param        body  body      dto.CreateAppointmentRequest  true  "Booking"
// @Success      201   {object}  dto.AppointmentResponse
// @Failure      400   {object}  shared.APIError
// @Failure      404   {object}  shared.APIError
// @Failure      409   {object}  shared.APIError
// @Security     BearerAuth
// @Router       /appointments [post]
func (h *Handler) Create(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.CreateAppointmentRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	start, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		return shared.BadRequest("invalid_start_at", "start_at must be an RFC3339 timestamp")
	}

	a, err := h.service.Book(c.Request().Context(), BookRequest{
		CustomerID: userID,
		ExpertID:   req.ExpertID,
		StartAt:    start,
		Duration:   time.Duration(req.DurationMinutes) * time.Minute,
		CouponCode: req.CouponCode,
		Notes:      req.Notes,
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("expert_not_found", "expert not found")
		}
		return h.mapError(err, "book")
	}

	return c.JSON(http.StatusCreated, ToResponse(a))
}

// @Summary      List my appointments
// @Tags         appointments
// @Produce      json
// @Param        role    query     string  false  "customer (default) or expert"
// @Param        status  query     string  false  "pending|confirmed|cancelled|completed"
// @Success      200     {object}  dto.AppointmentListResponse
// @Security     BearerAuth
// @Router       /appointments [get]
func (h *Handler) List(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	limit, offset := shared.Pagination(c, 20, 100)
	filter := ListFilter{Status: Status(c.QueryParam("status"))}

	switch c.QueryParam("role") {
	case "", "customer":
		filter.CustomerID = userID
	case "expert":
		filter.ExpertUserID = userID
	default:
		return shared.BadRequest("invalid_role", "role must be customer or expert")
	}

	appts, err := h.service.List(c.Request().Context(), filter, limit, offset)
	if err != nil {
		return h.mapError(err, "list")
	}

	resp := make([]dto.AppointmentResponse, len(appts))
	for i, a := range appts {
		resp[i] = ToResponse(a)
	}
	return c.JSON(http.StatusOK, dto.AppointmentListResponse{Appointments: resp, Limit: limit, Offset: offset})
}

// @Summary      Get an appointment
// @Tags         appointments
// @Produce      json
// @Param        id   path      string  true  "Appointment ID"
// @Success      200  {object}  dto.AppointmentResponse
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /appointments/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	a, err := h.service.Get(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return h.mapError(err, "get")
	}
	return c.JSON(http.StatusOK, ToResponse(a))
}

// @Summary      Confirm an appointment
// @Tags         appointments
// @Produce      json
// @Param        id   path      string  true  "Appointment ID"
// @Success      200  {object}  dto.AppointmentResponse
// @Failure      403  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /appointments/{id}/confirm [post]
func (h *Handler) Confirm(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	a, err := h.service.Confirm(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return h.mapError(err, "confirm")
	}
	return c.JSON(http.StatusOK, ToResponse(a))
}

// @Summary      Cancel an appointment
// @Tags         appointments
// @Accept       json
// @Produce      json
// @Param        id    path      string                        true   "Appointment ID"
// @Param        body  body      dto.CancelAppointmentRequest  false  "Reason"
// @Success      200   {object}  dto.AppointmentResponse
// @Failure      409   {object}  shared.APIError
// @Security     BearerAuth
// @Router       /appointments/{id}/cancel [post]
func (h *Handler) Cancel(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req dto.CancelAppointmentRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	a, err := h.service.Cancel(c.Request().Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		return h.mapError(err, "cancel")
	}
	return c.JSON(http.StatusOK, ToResponse(a))
}

// @Summary      Complete an appointment
// @Tags         appointments
// @Produce      json
// @Param        id   path      string  true  "Appointment ID"
// @Success      200  {object}  dto.AppointmentResponse
// @Failure      400  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /appointments/{id}/complete [post]
func (h *Handler) Complete(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	a, err := h.service.Complete(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return h.mapError(err, "complete")
	}
	return c.JSON(http.StatusOK, ToResponse(a))
}
