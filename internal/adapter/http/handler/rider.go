package handler

import (
	"net/http"

	"ridecore/internal/adapter/http/handler/dto"
	"ridecore/internal/domain/models"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
)

type Rider struct {
	service RideService
	l       logger.Logger
}

func NewRider(service RideService, l logger.Logger) *Rider {
	return &Rider{
		service: service,
		l:       l,
	}
}

// CreateRide godoc
// @Summary      Request a ride
// @Description  Creates a new ride request for the authenticated rider
// @Tags         Rides
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateRideRequest true "Ride request"
// @Success      201 {object} models.Ride
// @Failure      400 {object} map[string]string
// @Failure      409 {object} map[string]string
// @Failure      429 {object} map[string]string
// @Security     BearerAuth
// @Router       /rides [post]
func (h *Rider) CreateRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "create_ride_request")
	user := models.UserFromContext(ctx)

	var req dto.CreateRideRequest
	if err := readJSON(w, r, &req); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, errs)
		return
	}

	ride, err := h.service.Create(ctx, req.ToDraft(user.ID))
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to create ride", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusCreated, envelope{"ride": ride}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "ride requested", "ride_id", ride.ID)
}

// CancelRide godoc
// @Summary      Cancel a ride
// @Description  Cancels the rider's own ride, applying the late-cancellation fee when due
// @Tags         Rides
// @Produce      json
// @Param        ride_id path string true "Ride ID"
// @Success      200 {object} models.Ride
// @Failure      403 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Failure      409 {object} map[string]string
// @Security     BearerAuth
// @Router       /rides/{ride_id}/cancel [post]
func (h *Rider) CancelRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "cancel_ride_request")
	user := models.UserFromContext(ctx)

	rideID, err := pathID(r, "ride_id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.Cancel(ctx, rideID, user.ID, user.Role)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to cancel ride", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"ride":        ride,
		"fee_applied": ride.CancellationFeeApplied,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "ride cancelled", "ride_id", ride.ID, "fee_applied", ride.CancellationFeeApplied)
}

// GetRide godoc
// @Summary      Get a ride
// @Tags         Rides
// @Produce      json
// @Param        ride_id path string true "Ride ID"
// @Success      200 {object} models.Ride
// @Failure      403 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Security     BearerAuth
// @Router       /rides/{ride_id} [get]
func (h *Rider) GetRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_ride")
	user := models.UserFromContext(ctx)

	rideID, err := pathID(r, "ride_id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.Get(ctx, rideID, user)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to get ride", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride": ride}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// History godoc
// @Summary      List own rides
// @Description  Lists the caller's rides, newest first
// @Tags         Rides
// @Produce      json
// @Param        status query string false "Filter by status"
// @Param        limit  query int    false "Page size"
// @Param        offset query int    false "Page offset"
// @Success      200 {array} models.Ride
// @Security     BearerAuth
// @Router       /rides/history [get]
func (h *Rider) History(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "ride_history")
	user := models.UserFromContext(ctx)

	filter := historyFilter(r)

	rides, err := h.service.History(ctx, user.ID, filter)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to list ride history", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"rides": rides, "count": len(rides)}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// CalculateFare godoc
// @Summary      Recalculate the fare
// @Description  Recomputes the final fare from the base fare and vehicle class multiplier
// @Tags         Rides
// @Produce      json
// @Param        ride_id path string true "Ride ID"
// @Success      200 {object} models.Ride
// @Failure      404 {object} map[string]string
// @Security     BearerAuth
// @Router       /rides/{ride_id}/fare [post]
func (h *Rider) CalculateFare(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "calculate_fare")

	rideID, err := pathID(r, "ride_id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.CalculateFare(ctx, rideID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to calculate fare", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride": ride, "final_fare": ride.FinalFare}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}
