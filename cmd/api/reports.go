package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/farxc/rcs-reporting/internal/report"
	"github.com/farxc/rcs-reporting/internal/response"
	"github.com/farxc/rcs-reporting/internal/store"
)

type SaveReportResponse = response.APIResponse[store.SubmissionLogEntry]

// @Summary		Save report
// @Description	Stores every section of a report in one transaction and appends a submission log entry.
// @Tags			Reports
// @Accept			json
// @Produce		json
// @Param			report	body		report.Payload			true	"Full report"
// @Success		200		{object}	SaveReportResponse		"Report saved"
// @Failure		400		{object}	response.ErrorResponse	"Missing client name, date or sds code"
// @Failure		500		{object}	response.ErrorResponse	"Database error"
// @Router			/save-report [post]
func (app *application) handleSaveReport(w http.ResponseWriter, r *http.Request) {
	var p report.Payload
	if err := readJSON(w, r, &p); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	entry, err := app.store.Reports.Save(r.Context(), report.FromPayload(p))
	switch {
	case errors.Is(err, report.ErrMissingIdentity), errors.Is(err, store.ErrMissingSdsCode):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		app.logger.Error(component, "save-report client=%s date=%s: %v", p.ClientName, p.FromDate, err)
		writeJSONError(w, http.StatusInternalServerError, "Database error")
		return
	}

	resp := response.OK("Report saved ("+entry.SubmissionType+")", entry)
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		app.logger.Error(component, "write save-report response: %v", err)
	}
}

type getReportRequest struct {
	ClientName string `json:"clientName"`
	FromDate   string `json:"fromDate"`
	Mode       string `json:"mode"`
}

// @Summary		Get report
// @Description	Reads a stored report back. mode "exact" (default) matches the date; "latest" takes the newest submission at or before it.
// @Tags			Reports
// @Accept			json
// @Produce		json
// @Param			query	body		getReportRequest		true	"Client, date and lookup mode"
// @Success		200		{object}	report.Payload
// @Failure		400		{object}	response.ErrorResponse	"Missing fields or unknown mode"
// @Failure		404		{object}	response.ErrorResponse	"Report not found"
// @Failure		500		{object}	response.ErrorResponse	"Database error"
// @Router			/get-report [post]
func (app *application) handleGetReport(w http.ResponseWriter, r *http.Request) {
	var in getReportRequest
	if err := readJSON(w, r, &in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	in.ClientName = strings.TrimSpace(in.ClientName)
	if in.ClientName == "" || in.FromDate == "" {
		writeJSONError(w, http.StatusBadRequest, "clientName and fromDate are required")
		return
	}
	mode := strings.ToLower(in.Mode)
	if mode == "" {
		mode = store.LookupExact
	}
	if mode != store.LookupExact && mode != store.LookupLatest {
		writeJSONError(w, http.StatusBadRequest, "mode must be exact or latest")
		return
	}

	rep, err := app.store.Reports.Get(r.Context(), in.ClientName, report.NormalizeDate(in.FromDate), mode)
	switch {
	case errors.Is(err, store.ErrReportNotFound):
		writeJSONError(w, http.StatusNotFound, "Report not found")
		return
	case err != nil:
		app.logger.Error(component, "get-report client=%s date=%s: %v", in.ClientName, in.FromDate, err)
		writeJSONError(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := writeJSON(w, http.StatusOK, rep.Payload()); err != nil {
		app.logger.Error(component, "write get-report response: %v", err)
	}
}

// @Summary		Submission log
// @Description	Lists every relational submission, newest first.
// @Tags			Reports
// @Produce		json
// @Success		200	{array}		store.SubmissionLogEntry
// @Failure		404	{object}	response.ErrorResponse	"No submissions yet"
// @Failure		500	{object}	response.ErrorResponse	"Database error"
// @Router			/last-submitted-data [get]
func (app *application) handleLastSubmitted(w http.ResponseWriter, r *http.Request) {
	entries, err := app.store.SubmissionLog.List(r.Context())
	if err != nil {
		app.logger.Error(component, "last-submitted-data: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if len(entries) == 0 {
		writeJSONError(w, http.StatusNotFound, "No submissions found")
		return
	}
	if err := writeJSON(w, http.StatusOK, entries); err != nil {
		app.logger.Error(component, "write last-submitted-data response: %v", err)
	}
}
