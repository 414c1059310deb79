package handler

import (
	"net/http"

	"ridecore/internal/adapter/http/handler/dto"
	"ridecore/internal/domain/models"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
)

type Driver struct {
	service RideService
	l       logger.Logger
}

func NewDriver(service RideService, l logger.Logger) *Driver {
	return &Driver{
		service: service,
		l:       l,
	}
}

// AvailableRides godoc
// @Summary      List open ride requests
// @Description  Lists requested rides a driver could accept, oldest first
// @Tags         Driver
// @Produce      json
// @Param        limit query int false "Page size"
// @Success      200 {array} models.Ride
// @Security     BearerAuth
// @Router       /rides/available [get]
func (h *Driver) AvailableRides(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "available_rides")

	rides, err := h.service.AvailableRides(ctx, queryInt(r, "limit", 50))
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to list available rides", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"rides": rides, "count": len(rides)}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// AcceptRide godoc
// @Summary      Accept a ride
// @Description  Assigns the driver to a requested ride; only one driver can win
// @Tags         Driver
// @Produce      json
// @Param        ride_id path string true "Ride ID"
// @Success      200 {object} models.Ride
// @Failure      404 {object} map[string]string
// @Failure      409 {object} map[string]string
// @Security     BearerAuth
// @Router       /rides/{ride_id}/accept [post]
func (h *Driver) AcceptRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "accept_ride_request")
	user := models.UserFromContext(ctx)

	rideID, err := pathID(r, "ride_id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.Accept(ctx, rideID, user.ID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to accept ride", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride": ride}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "ride accepted", "ride_id", ride.ID)
}

// StartRide godoc
// @Summary      Start a ride
// @Description  Moves an accepted ride to in_progress; only the assigned driver may start it
// @Tags         Driver
// @Produce      json
// @Param        ride_id path string true "Ride ID"
// @Success      200 {object} models.Ride
// @Failure      403 {object} map[string]string
// @Failure      409 {object} map[string]string
// @Security     BearerAuth
// @Router       /rides/{ride_id}/start [post]
func (h *Driver) StartRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "start_ride_request")
	user := models.UserFromContext(ctx)

	rideID, err := pathID(r, "ride_id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.Start(ctx, rideID, user.ID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to start ride", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride": ride}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "ride started", "ride_id", ride.ID)
}

// CompleteRide godoc
// @Summary      Complete a ride
// @Description  Finishes an in-progress ride; the final fare defaults to the base fare
// @Tags         Driver
// @Accept       json
// @Produce      json
// @Param        ride_id path string true "Ride ID"
// @Param        request body dto.CompleteRideRequest false "Completion details"
// @Success      200 {object} models.Ride
// @Failure      403 {object} map[string]string
// @Failure      409 {object} map[string]string
// @Security     BearerAuth
// @Router       /rides/{ride_id}/complete [post]
func (h *Driver) CompleteRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "complete_ride_request")
	user := models.UserFromContext(ctx)

	rideID, err := pathID(r, "ride_id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var req dto.CompleteRideRequest
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &req); err != nil {
			h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
			errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		if errs := req.Validate(); len(errs) > 0 {
			failedValidationResponse(w, errs)
			return
		}
	}

	ride, err := h.service.Complete(ctx, rideID, user.ID, req.ActualFare)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to complete ride", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride": ride, "final_fare": ride.FinalFare}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "ride completed", "ride_id", ride.ID)
}

// History godoc
// @Summary      List own rides
// @Tags         Driver
// @Produce      json
// @Param        status query string false "Filter by status"
// @Param        limit  query int    false "Page size"
// @Param        offset query int    false "Page offset"
// @Success      200 {array} models.Ride
// @Security     BearerAuth
// @Router       /rides/history [get]
func (h *Driver) History(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_ride_history")
	user := models.UserFromContext(ctx)

	rides, err := h.service.History(ctx, user.ID, historyFilter(r))
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

// GetRide godoc
// @Summary      Get a ride
// @Tags         Driver
// @Produce      json
// @Param        ride_id path string true "Ride ID"
// @Success      200 {object} models.Ride
// @Failure      403 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Security     BearerAuth
// @Router       /rides/{ride_id} [get]
func (h *Driver) GetRide(w http.ResponseWriter, r *http.Request) {
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
