// Package push replays filed reports to the upstream endpoints and records
// the outcome of every row in the push log.
package push

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/farxc/rcs-reporting/internal/logger"
	"github.com/farxc/rcs-reporting/internal/ordered"
	"github.com/farxc/rcs-reporting/internal/report"
	"github.com/farxc/rcs-reporting/internal/store"
	"github.com/farxc/rcs-reporting/internal/upstream"
)

const component = "Push"

const DefaultChunkSize = 10

// ModuleJewel keys jewel rows in the push log.
const ModuleJewel = "Jewel"

type Mode string

const (
	ModeLive   Mode = "LIVE"
	ModeDryRun Mode = "DRY_RUN"
)

var ErrNoClients = errors.New("clientNames must not be empty")
var ErrNoDate = errors.New("fromDate is required")

type Upstream interface {
	Push(ctx context.Context, e upstream.Endpoint, row any) (json.RawMessage, error)
}

type Log interface {
	Upsert(ctx context.Context, e *store.PushLogEntry) error
}

type Config struct {
	Upstream  Upstream
	Log       Log
	ChunkSize int
	DryRun    bool
	Logger    *logger.Logger
	// Progress, when set, receives a status line per client.
	Progress func(string)
}

type Pusher struct {
	upstream  Upstream
	log       Log
	chunkSize int
	dryRun    bool
	logger    *logger.Logger
	progress  func(string)
}

func New(cfg Config) *Pusher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Progress == nil {
		cfg.Progress = func(string) {}
	}
	return &Pusher{
		upstream:  cfg.Upstream,
		log:       cfg.Log,
		chunkSize: cfg.ChunkSize,
		dryRun:    cfg.DryRun,
		logger:    cfg.Logger,
		progress:  cfg.Progress,
	}
}

func (p *Pusher) Mode() Mode {
	if p.dryRun {
		return ModeDryRun
	}
	return ModeLive
}

// RowResult is the outcome of one row. Response holds the upstream answer,
// the would-be payload in dry-run mode, or {"error": ...} on failure.
type RowResult struct {
	Module   string          `json:"module"`
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type ClientResult struct {
	ClientName  string
	DepositLoan []RowResult
	Jewel       []RowResult
	Error       string
}

func (c ClientResult) Failed() bool {
	if c.Error != "" {
		return true
	}
	for _, rows := range [][]RowResult{c.DepositLoan, c.Jewel} {
		for _, r := range rows {
			if r.Status == store.PushFailed {
				return true
			}
		}
	}
	return false
}

func (c ClientResult) MarshalJSON() ([]byte, error) {
	if c.Error != "" {
		return json.Marshal(struct {
			ClientName string `json:"clientName"`
			Error      string `json:"error"`
		}{c.ClientName, c.Error})
	}
	dl, j := c.DepositLoan, c.Jewel
	if dl == nil {
		dl = []RowResult{}
	}
	if j == nil {
		j = []RowResult{}
	}
	return json.Marshal(struct {
		ClientName  string      `json:"clientName"`
		DepositLoan []RowResult `json:"deposit_loan"`
		Jewel       []RowResult `json:"jewel"`
	}{c.ClientName, dl, j})
}

type Response struct {
	Source        string         `json:"source"`
	Mode          Mode           `json:"mode"`
	Results       []ClientResult `json:"results"`
	FailedClients []string       `json:"failedClients"`
}

// Push replays the report of every client for fromDate. Problems with one
// client are recorded in its result and never stop the others.
func (p *Pusher) Push(ctx context.Context, src Source, clientNames []string, fromDate string) (Response, error) {
	if len(clientNames) == 0 {
		return Response{}, ErrNoClients
	}
	if strings.TrimSpace(fromDate) == "" {
		return Response{}, ErrNoDate
	}

	resp := Response{
		Source:        src.Name(),
		Mode:          p.Mode(),
		Results:       make([]ClientResult, 0, len(clientNames)),
		FailedClients: []string{},
	}
	for i, name := range clientNames {
		if err := ctx.Err(); err != nil {
			return resp, err
		}
		p.progress(fmt.Sprintf("Pushing %s (%d/%d)", name, i+1, len(clientNames)))
		res := p.pushClient(ctx, src, name, fromDate)
		if res.Failed() {
			resp.FailedClients = append(resp.FailedClients, name)
		}
		resp.Results = append(resp.Results, res)
	}
	p.logger.Info(component, "Push finished: source=%s mode=%s clients=%d failed=%d",
		resp.Source, resp.Mode, len(clientNames), len(resp.FailedClients))
	return resp, nil
}

type item struct {
	module string
	row    *ordered.Map
}

func (p *Pusher) pushClient(ctx context.Context, src Source, clientName, fromDate string) ClientResult {
	res := ClientResult{ClientName: clientName}
	r, err := src.Load(ctx, clientName, fromDate)
	if err != nil {
		if !errors.Is(err, ErrNoSubmission) {
			p.logger.Error(component, "Load %s/%s from %s: %v", clientName, fromDate, src.Name(), err)
		}
		res.Error = err.Error()
		return res
	}

	_, sdsCode := r.DeriveIdentity()
	envelope := func(row *ordered.Map) *ordered.Map {
		out := row.Clone()
		out.Set("clientName", clientName)
		out.Set("fromDate", fromDate)
		out.Set("sdsCode", sdsCode)
		return out
	}

	var depositLoan []item
	for _, sec := range []struct {
		table    report.Table
		fallback report.Module
	}{
		{r.Member, report.ModuleMembers},
		{r.Deposit, report.ModuleDeposits},
		{r.Loan, report.ModuleLoans},
	} {
		for _, row := range sec.table.Rows {
			depositLoan = append(depositLoan, item{module: moduleOf(row, sec.fallback), row: envelope(row)})
		}
	}
	jewel := make([]item, 0, len(r.Jewel.Rows))
	for _, row := range r.Jewel.Rows {
		jewel = append(jewel, item{module: ModuleJewel, row: envelope(row)})
	}

	key := store.PushLogEntry{Source: src.Name(), ClientName: clientName, FromDate: fromDate}
	res.DepositLoan = p.pushBatch(ctx, upstream.DepositLoan, depositLoan, key)
	res.Jewel = p.pushBatch(ctx, upstream.Jewel, jewel, key)
	return res
}

func moduleOf(row *ordered.Map, fallback report.Module) string {
	if m, err := report.ParseModule(row.String(report.ModuleField)); err == nil {
		return m.String()
	}
	return fallback.String()
}

// pushBatch sends items chunk by chunk; rows within a chunk go out together.
func (p *Pusher) pushBatch(ctx context.Context, e upstream.Endpoint, items []item, key store.PushLogEntry) []RowResult {
	results := make([]RowResult, len(items))
	for start := 0; start < len(items); start += p.chunkSize {
		end := min(start+p.chunkSize, len(items))
		// Row failures land in results and are never returned, so one
		// failed row cannot cancel its siblings.
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = p.pushRow(ctx, e, items[i], key)
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

func (p *Pusher) pushRow(ctx context.Context, e upstream.Endpoint, it item, key store.PushLogEntry) RowResult {
	res := RowResult{Module: it.module}
	if p.dryRun {
		payload, err := json.Marshal(it.row)
		if err != nil {
			payload = errorBody(err)
		}
		res.Status = store.PushDryRun
		res.Response = payload
		p.logger.Debug(component, "Dry run %s %s: %s", e, it.module, payload)
	} else {
		body, err := p.send(ctx, e, it.row)
		if err != nil {
			res.Status = store.PushFailed
			res.Response = errorBody(err)
			p.logger.Warn(component, "Push %s %s for %s failed: %v", e, it.module, key.ClientName, err)
		} else {
			res.Status = store.PushSuccess
			res.Response = body
		}
	}

	entry := key
	entry.Module = it.module
	entry.Status = res.Status
	entry.Response = sql.NullString{String: string(res.Response), Valid: len(res.Response) > 0}
	if p.log != nil {
		if err := p.log.Upsert(ctx, &entry); err != nil {
			p.logger.Error(component, "Push log upsert %s/%s/%s: %v", key.ClientName, key.FromDate, it.module, err)
		}
	}
	return res
}

func (p *Pusher) send(ctx context.Context, e upstream.Endpoint, row *ordered.Map) (json.RawMessage, error) {
	if p.upstream == nil {
		return nil, errors.New("upstream not configured")
	}
	return p.upstream.Push(ctx, e, row)
}

func errorBody(err error) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
