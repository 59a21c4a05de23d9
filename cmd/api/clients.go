package main

import (
	"errors"
	"net/http"

	"github.com/farxc/rcs-reporting/internal/scheduler"
)

// @Summary		Daily auto-enqueue
// @Description	Enqueues today's report command for every client that has none yet.
// @Tags			Clients
// @Produce		json
// @Success		200	{object}	scheduler.Summary
// @Failure		503	{object}	response.ErrorResponse	"Auto-execute not configured"
// @Failure		500	{object}	response.ErrorResponse
// @Router			/clients/auto-execute [get]
func (app *application) handleAutoExecute(w http.ResponseWriter, r *http.Request) {
	if app.autoExec == nil {
		writeJSONError(w, http.StatusServiceUnavailable, scheduler.ErrQueryIDRequired.Error())
		return
	}
	sum, err := app.autoExec.Run(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrQueryIDRequired):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		app.logger.Error(component, "auto-execute: %v", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := writeJSON(w, http.StatusOK, sum); err != nil {
		app.logger.Error(component, "write auto-execute response: %v", err)
	}
}
