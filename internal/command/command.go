// Package command models queued query invocations and the result sets an
// external worker materializes for them.
package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

const (
	Collection        = "commands"
	ResultsCollection = "results"
	RowsCollection    = "rows"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

var ErrInvalidTransition = errors.New("invalid command status transition")

// CanTransition reports whether a command may move from one status to the
// next. Terminal statuses never change.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusSuccess || to == StatusFailed
	case StatusRunning:
		return to == StatusSuccess || to == StatusFailed
	}
	return false
}

// Query types reported by the worker on success.
const (
	QueryTypeSelect    = "select"
	QueryTypeNonSelect = "non-select"
)

type Command struct {
	ID             string
	ClientID       string
	SubmitterID    string
	QueryID        string
	Variables      map[string]string
	Status         Status
	CreatedAt      time.Time
	CompletedAt    time.Time
	ResultsLocator string
	ColumnOrder    []string
	Error          string
	QueryType      string
	Result         any
}

// CombinedID scopes a result set to the user that requested it.
func CombinedID(commandID, submitterID string) string {
	return commandID + "_" + submitterID
}

// Fields renders the command as stored document data.
func (c Command) Fields() *ordered.Map {
	vars := ordered.New()
	for _, k := range sortedKeys(c.Variables) {
		vars.Set(k, c.Variables[k])
	}
	m := ordered.FromPairs(
		"clientId", c.ClientID,
		"submitterId", c.SubmitterID,
		"queryId", c.QueryID,
		"variables", vars,
		"status", string(c.Status),
		"createdAt", c.CreatedAt,
	)
	if !c.CompletedAt.IsZero() {
		m.Set("completedAt", c.CompletedAt)
	}
	if c.ResultsLocator != "" {
		m.Set("resultsLocator", c.ResultsLocator)
	}
	if len(c.ColumnOrder) > 0 {
		m.Set("columnOrder", stringsToAny(c.ColumnOrder))
	}
	if c.Error != "" {
		m.Set("error", c.Error)
	}
	if c.QueryType != "" {
		m.Set("queryType", c.QueryType)
	}
	if c.Result != nil {
		m.Set("result", c.Result)
	}
	return m
}

// FromDocument decodes a stored command.
func FromDocument(doc docstore.Document) (Command, error) {
	d := doc.Data
	c := Command{
		ID:             doc.ID,
		ClientID:       d.String("clientId"),
		SubmitterID:    d.String("submitterId"),
		QueryID:        d.String("queryId"),
		Status:         Status(d.String("status")),
		ResultsLocator: d.String("resultsLocator"),
		Error:          d.String("error"),
		QueryType:      d.String("queryType"),
		ColumnOrder:    StringSlice(d, "columnOrder"),
		Variables:      map[string]string{},
	}
	if c.Status == "" {
		return Command{}, fmt.Errorf("command %s has no status", doc.ID)
	}
	if v, ok := d.Get("variables"); ok {
		if vars, ok := v.(*ordered.Map); ok {
			vars.Range(func(k string, _ any) bool {
				c.Variables[k] = vars.String(k)
				return true
			})
		}
	}
	if t, ok := timeField(d, "createdAt"); ok {
		c.CreatedAt = t
	} else {
		c.CreatedAt = doc.CreateTime
	}
	if t, ok := timeField(d, "completedAt"); ok {
		c.CompletedAt = t
	}
	c.Result, _ = d.Get("result")
	return c, nil
}

// StringSlice reads an array-of-strings field; absent or malformed fields
// give nil.
func StringSlice(d *ordered.Map, field string) []string {
	v, ok := d.Get(field)
	if !ok {
		return nil
	}
	switch arr := v.(type) {
	case []string:
		return append([]string(nil), arr...)
	case []any:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

func timeField(d *ordered.Map, field string) (time.Time, bool) {
	v, ok := d.Get(field)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
