package main

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/farxc/rcs-reporting/internal/push"
	"github.com/farxc/rcs-reporting/internal/report"
	"github.com/farxc/rcs-reporting/internal/upstream"
)

type pushRequest struct {
	ClientNames []string `json:"clientNames"`
	FromDate    string   `json:"fromDate"`
}

// requireAPIKey rejects requests whose x-api-key header does not match the
// configured key. An unset key rejects everything.
func (app *application) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(upstream.APIKeyHeader)
		want := app.config.push.apiKey
		if want == "" || subtle.ConstantTimeCompare([]byte(key), []byte(want)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// @Summary		Push from the document store
// @Description	Replays the exact-date reports of the given clients upstream.
// @Tags			Push
// @Accept			json
// @Produce		json
// @Param			x-api-key	header		string					true	"Push API key"
// @Param			request		body		pushRequest				true	"Clients and date"
// @Success		200			{object}	push.Response
// @Failure		400			{object}	response.ErrorResponse
// @Failure		401			{object}	response.ErrorResponse	"Unauthorized"
// @Router			/push/rcs [post]
func (app *application) handlePushRCS(w http.ResponseWriter, r *http.Request) {
	app.handlePush(w, r, push.DocumentSource{Reports: app.reports})
}

// @Summary		Push from the relational store
// @Description	Replays the latest report at or before the date for the given clients upstream.
// @Tags			Push
// @Accept			json
// @Produce		json
// @Param			x-api-key	header		string					true	"Push API key"
// @Param			request		body		pushRequest				true	"Clients and date"
// @Success		200			{object}	push.Response
// @Failure		400			{object}	response.ErrorResponse
// @Failure		401			{object}	response.ErrorResponse	"Unauthorized"
// @Router			/push/local [post]
func (app *application) handlePushLocal(w http.ResponseWriter, r *http.Request) {
	app.handlePush(w, r, push.RelationalSource{Reports: app.store.Reports})
}

func (app *application) handlePush(w http.ResponseWriter, r *http.Request, src push.Source) {
	var in pushRequest
	if err := readJSON(w, r, &in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	names := make([]string, 0, len(in.ClientNames))
	for _, n := range in.ClientNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 || strings.TrimSpace(in.FromDate) == "" {
		writeJSONError(w, http.StatusBadRequest, "clientNames and fromDate are required")
		return
	}

	resp, err := app.pusher.Push(r.Context(), src, names, report.NormalizeDate(in.FromDate))
	if err != nil {
		app.logger.Error(component, "push source=%s: %v", src.Name(), err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		app.logger.Error(component, "write push response: %v", err)
	}
}
