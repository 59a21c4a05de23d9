// Package rendezvous submits query commands to the shared command store and
// waits for the external worker to materialize their results.
package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/farxc/rcs-reporting/internal/command"
	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/logger"
)

const component = "RENDEZVOUS"

// DefaultPollInterval is the interval of the legacy polling wait.
const DefaultPollInterval = 2 * time.Second

var (
	ErrTimeout         = errors.New("timed out waiting for command")
	ErrTimeoutRequired = errors.New("a positive timeout is required")
	ErrQueryFailed     = errors.New("query failed")
)

// QueryFailedError carries the message the worker reported for a failed
// command. It matches ErrQueryFailed.
type QueryFailedError struct {
	CommandID string
	Message   string
}

func (e *QueryFailedError) Error() string {
	return fmt.Sprintf("command %s failed: %s", e.CommandID, e.Message)
}

func (e *QueryFailedError) Is(target error) bool {
	return target == ErrQueryFailed
}

type Client struct {
	commands *command.Store
	results  *command.ResultStore
	logger   *logger.Logger

	// Poll makes Execute read the command every PollInterval instead of
	// subscribing to it.
	Poll         bool
	PollInterval time.Duration
}

func New(docs docstore.Store, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		commands:     command.NewStore(docs),
		results:      command.NewResultStore(docs),
		logger:       log,
		PollInterval: DefaultPollInterval,
	}
}

// Commands exposes the underlying command store.
func (c *Client) Commands() *command.Store {
	return c.commands
}

// SubmitCommand queues a pending command and returns its id.
func (c *Client) SubmitCommand(ctx context.Context, clientID, submitterID, queryID string, vars map[string]string) (string, error) {
	cmd, err := c.commands.Create(ctx, clientID, submitterID, queryID, vars)
	if err != nil {
		return "", err
	}
	c.logger.Debug(component, "submitted command %s query=%s client=%s", cmd.ID, queryID, clientID)
	return cmd.ID, nil
}

// AwaitCommand blocks until the command reaches a terminal status, the
// timeout fires or ctx is cancelled. The subscription is closed on every
// return path.
func (c *Client) AwaitCommand(ctx context.Context, id string, timeout time.Duration) (command.Command, error) {
	if timeout <= 0 {
		return command.Command{}, ErrTimeoutRequired
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan command.Command, 1)
	sub, err := c.commands.Watch(waitCtx, id, func(cmd command.Command, ok bool) {
		if !ok || !cmd.Status.IsTerminal() {
			return
		}
		select {
		case done <- cmd:
		default:
		}
	})
	if err != nil {
		return command.Command{}, fmt.Errorf("watch command %s: %w", id, err)
	}
	defer sub.Close()

	select {
	case cmd := <-done:
		return terminal(cmd)
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return command.Command{}, ctx.Err()
		}
		c.logger.Warn(component, "command %s not finished after %s", id, timeout)
		return command.Command{}, fmt.Errorf("%w: command %s after %s", ErrTimeout, id, timeout)
	}
}

// PollCommand is the polling variant of AwaitCommand: it reads the command
// every PollInterval instead of subscribing.
func (c *Client) PollCommand(ctx context.Context, id string, timeout time.Duration) (command.Command, error) {
	if timeout <= 0 {
		return command.Command{}, ErrTimeoutRequired
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cmd, err := c.commands.Get(ctx, id)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return command.Command{}, err
		}
		if err == nil && cmd.Status.IsTerminal() {
			return terminal(cmd)
		}
		select {
		case <-ctx.Done():
			return command.Command{}, ctx.Err()
		case <-deadline.C:
			return command.Command{}, fmt.Errorf("%w: command %s after %s", ErrTimeout, id, timeout)
		case <-ticker.C:
		}
	}
}

func terminal(cmd command.Command) (command.Command, error) {
	if cmd.Status == command.StatusFailed {
		return cmd, &QueryFailedError{CommandID: cmd.ID, Message: cmd.Error}
	}
	return cmd, nil
}

// Cleanup deletes the result set of one command and then sweeps every other
// result set still tagged with the submitter. An empty commandID only sweeps.
func (c *Client) Cleanup(ctx context.Context, commandID, submitterID string) error {
	var errs []error
	if commandID != "" {
		if err := c.results.Delete(ctx, command.CombinedID(commandID, submitterID)); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.SweepSubmitter(ctx, submitterID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SweepSubmitter deletes all result sets tagged with the submitter and
// returns how many were removed.
func (c *Client) SweepSubmitter(ctx context.Context, submitterID string) (int, error) {
	ids, err := c.results.ListBySubmitter(ctx, submitterID)
	if err != nil {
		return 0, fmt.Errorf("list result sets of %s: %w", submitterID, err)
	}
	var errs []error
	removed := 0
	for _, id := range ids {
		if err := c.results.Delete(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		c.logger.Info(component, "removed %d result sets of %s", removed, submitterID)
	}
	return removed, errors.Join(errs...)
}

// resultSetID resolves where the worker put the results of cmd.
func resultSetID(cmd command.Command) string {
	if cmd.ResultsLocator != "" {
		return path.Base(cmd.ResultsLocator)
	}
	return command.CombinedID(cmd.ID, cmd.SubmitterID)
}
