package main

import "net/http"

const version = "1.0.0"

// @Summary		Health check
// @Description	returns the status of the service and the push mode
// @Tags			Health
// @Produce		json
// @Success		200	{object}	map[string]string
// @Router			/v1/health [get]
func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]string{
		"status":  "available",
		"version": version,
		"mode":    string(app.pusher.Mode()),
	}

	if err := writeJSON(w, http.StatusOK, data); err != nil {
		app.logger.Error(component, "write health response: %v", err)
	}
}
