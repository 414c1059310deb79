package handler

import (
	"net/http"
	"time"

	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
)

type Admin struct {
	stats   RideStats
	parties PartyRegistry
	l       logger.Logger
}

func NewAdmin(stats RideStats, parties PartyRegistry, l logger.Logger) *Admin {
	return &Admin{
		stats:   stats,
		parties: parties,
		l:       l,
	}
}

// GetOverview godoc
// @Summary      System overview
// @Description  Ride totals per status and the number of connected parties
// @Tags         Admin
// @Produce      json
// @Success      200 {object} map[string]any
// @Security     BearerAuth
// @Router       /admin/overview [get]
func (h *Admin) GetOverview(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_overview")

	counts, err := h.stats.CountByStatus(ctx)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to count rides", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"rides_by_status":   counts,
		"connected_parties": h.parties.Count(),
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// GetActiveRides godoc
// @Summary      List active rides
// @Description  Rides not yet completed or cancelled, oldest first
// @Tags         Admin
// @Produce      json
// @Param        limit query int false "Page size"
// @Success      200 {array} models.Ride
// @Security     BearerAuth
// @Router       /admin/rides/active [get]
func (h *Admin) GetActiveRides(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_active_rides")

	rides, err := h.stats.FindActive(ctx, queryInt(r, "limit", 100))
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to list active rides", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"rides": rides, "count": len(rides)}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// GetParties godoc
// @Summary      List connected parties
// @Description  Current realtime registrations: user, role and connect time
// @Tags         Admin
// @Produce      json
// @Success      200 {object} map[string]any
// @Security     BearerAuth
// @Router       /admin/parties [get]
func (h *Admin) GetParties(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_parties")

	parties := h.parties.Parties()

	type partyView struct {
		UserID      string `json:"user_id"`
		Role        string `json:"role"`
		ConnectedAt string `json:"connected_at"`
	}
	views := make([]partyView, 0, len(parties))
	for _, p := range parties {
		views = append(views, partyView{
			UserID:      p.UserID.String(),
			Role:        p.Role.String(),
			ConnectedAt: p.ConnectedAt.UTC().Format(time.RFC3339),
		})
	}

	if err := writeJSON(w, http.StatusOK, envelope{"parties": views, "count": len(views)}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}
