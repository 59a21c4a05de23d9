// Package localapi is the client of the local persistence API served by
// cmd/api.
package localapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/farxc/rcs-reporting/internal/logger"
	"github.com/farxc/rcs-reporting/internal/report"
)

const component = "LocalAPI"

var ErrNotFound = errors.New("not found")

// Lookup modes of /get-report.
const (
	ModeExact  = "exact"
	ModeLatest = "latest"
)

// GetReportRequest is the body of POST /get-report.
type GetReportRequest struct {
	ClientName string `json:"clientName"`
	FromDate   string `json:"fromDate"`
	Mode       string `json:"mode,omitempty"`
}

// Submission is one row of the submission log as served by
// /last-submitted-data.
type Submission struct {
	ID             string    `json:"id"`
	ClientName     string    `json:"client_name"`
	SdsCode        string    `json:"sds_code"`
	ReportDate     string    `json:"report_date"`
	HasBranch      bool      `json:"has_branch"`
	HasMember      bool      `json:"has_member"`
	HasDeposit     bool      `json:"has_deposit"`
	HasLoan        bool      `json:"has_loan"`
	HasJewel       bool      `json:"has_jewel"`
	HasEmployee    bool      `json:"has_employee"`
	HasNPA         bool      `json:"has_npa"`
	HasProfit      bool      `json:"has_profit"`
	HasSafety      bool      `json:"has_safety"`
	SubmissionType string    `json:"submission_type"`
	CreatedAt      time.Time `json:"created_at"`
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger
}

func New(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// SaveReport posts the full report to /save-report.
func (c *Client) SaveReport(ctx context.Context, r report.Report) error {
	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/save-report", r.Payload(), &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("save report: %s", out.Error)
	}
	c.logger.Info(component, "Saved report client=%s date=%s", r.ClientName, r.Date)
	return nil
}

// GetReport loads a stored report. A 404 gives ErrNotFound.
func (c *Client) GetReport(ctx context.Context, clientName, date, mode string) (report.Report, error) {
	var p report.Payload
	req := GetReportRequest{ClientName: clientName, FromDate: date, Mode: mode}
	if err := c.do(ctx, http.MethodPost, "/get-report", req, &p); err != nil {
		return report.Report{}, err
	}
	return report.FromPayload(p), nil
}

// LastSubmitted returns the whole submission log.
func (c *Client) LastSubmitted(ctx context.Context) ([]Submission, error) {
	var out []Submission
	if err := c.do(ctx, http.MethodGet, "/last-submitted-data", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug(component, "%s %s", method, path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		c.logger.Warn(component, "Non-OK response: path=%s status=%d error=%s", path, resp.StatusCode, e.Error)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
