// Package pipeline dispatches run requests to workers and merges their results back into the
// state store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/eventbus"
	"github.com/dukex/playground/pkg/events"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/state"
)

var (
	ErrVariantNotFound = errors.New("variant not found")
	ErrRowNotFound     = errors.New("row not found")
)

// ClientConfig carries the request fields shared by every run.
type ClientConfig struct {
	ProjectID string
	Headers   map[string]string
}

// Client marks run slots as running, publishes run requests and merges the results.
type Client struct {
	bus    eventbus.EventBus
	store  *state.Store
	config ClientConfig
	logger *slog.Logger
}

func NewClient(bus eventbus.EventBus, store *state.Store, config ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		bus:    bus,
		store:  store,
		config: config,
		logger: logger.With("module", "pipeline_client"),
	}
}

// Start registers the result handler and subscribes to the bus.
func (c *Client) Start(ctx context.Context) error {
	if err := c.bus.Handle(events.RunVariantInputRowResultEvent, c.HandleResult); err != nil {
		return err
	}

	return c.bus.Subscribe(ctx)
}

// RunRow runs a variant against one input row.
func (c *Client) RunRow(ctx context.Context, variantID, rowID string) error {
	return c.dispatch(ctx, variantID, rowID, func(st *models.State, v *models.Variant) (*events.RunRequest, error) {
		row := inputRow(st, rowID)
		if row == nil {
			return nil, fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
		}

		req := c.request(v, rowID)
		req.InputRow = row

		return req, nil
	})
}

// RunChat runs a variant against a chat conversation. rowID is either a chat row, which sends its
// whole history, or one of its messages, which sends the history up to and including it.
func (c *Client) RunChat(ctx context.Context, variantID, rowID string) error {
	return c.dispatch(ctx, variantID, rowID, func(st *models.State, v *models.Variant) (*events.RunRequest, error) {
		history, ok := chatHistory(st, rowID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
		}

		req := c.request(v, rowID)
		req.History = history

		if inputs := st.GenerationData.Inputs; len(inputs.Items) > 0 {
			req.InputRow = inputs.Items[0]
		}

		return req, nil
	})
}

// RunAll runs every displayed variant against every row it applies to: input rows for completion
// variants and chat rows for chat variants.
func (c *Client) RunAll(ctx context.Context) error {
	st := c.store.Snapshot()

	var errs []error

	for _, v := range st.DisplayedVariants() {
		if v.IsChat {
			for _, row := range st.GenerationData.Messages.Items {
				errs = append(errs, c.RunChat(ctx, v.ID, row.ID))
			}

			continue
		}

		for _, row := range st.GenerationData.Inputs.Items {
			errs = append(errs, c.RunRow(ctx, v.ID, row.ID))
		}
	}

	return errors.Join(errs...)
}

type buildFunc func(st *models.State, v *models.Variant) (*events.RunRequest, error)

func (c *Client) dispatch(ctx context.Context, variantID, rowID string, build buildFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Once the slot is marked running, the request and its result must go out even if the caller
	// goes away, or the slot would never leave the running state.
	ctx = context.WithoutCancel(ctx)

	var req *events.RunRequest

	_, err := c.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		v := st.FindVariantByID(variantID)
		if v == nil {
			return nil, fmt.Errorf("%w: %s", ErrVariantNotFound, variantID)
		}

		built, err := build(st, v)
		if err != nil {
			return nil, err
		}

		slot := st.EnsureRunSlot(rowID, variantID)
		slot.IsRunning = true
		req = built

		return st, nil
	}, state.MutateOptions{Op: "run"})
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "Dispatching run", "variant_id", variantID, "row_id", rowID)

	if err := c.bus.Publish(ctx, rowID, events.NewRunVariantInputRow(*req)); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish run request", "variant_id", variantID, "row_id", rowID, "error", err)

		return c.merge(ctx, rowID, variantID, models.RunResult{
			Error:    err.Error(),
			Metadata: models.ResultMetadata{Timestamp: time.Now().UTC(), Type: models.ErrorTypeNetwork},
		})
	}

	return nil
}

func (c *Client) request(v *models.Variant, rowID string) *events.RunRequest {
	return &events.RunRequest{
		Variant:   v,
		RowID:     rowID,
		AppID:     v.AppID,
		URI:       v.URI,
		Headers:   c.config.Headers,
		ProjectID: c.config.ProjectID,
	}
}

// HandleResult merges a worker result into its run slot. Results for rows or variants that no
// longer exist are dropped.
func (c *Client) HandleResult(ctx context.Context, event any) error {
	result, ok := event.(*events.RunVariantInputRowResult)
	if !ok {
		c.logger.ErrorContext(ctx, "Invalid event type for run result")

		return nil
	}

	p := result.Payload

	if err := c.merge(ctx, p.RowID, p.VariantID, p.Result); err != nil {
		c.logger.ErrorContext(ctx, "Failed to merge run result", "variant_id", p.VariantID, "row_id", p.RowID, "error", err)

		return err
	}

	return nil
}

func (c *Client) merge(ctx context.Context, rowID, variantID string, result models.RunResult) error {
	_, err := c.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		if st.FindRow(rowID) == nil || st.FindVariantByID(variantID) == nil {
			c.logger.DebugContext(ctx, "Dropping result of removed row", "variant_id", variantID, "row_id", rowID)

			return st, nil
		}

		slot := st.EnsureRunSlot(rowID, variantID)
		slot.IsRunning = false
		slot.Result = &result
		slot.ResultRef = ""

		if result.Response != nil {
			slot.ResultRef = c.store.Content().HashResponse(result.Response)
		}

		return st, nil
	}, state.MutateOptions{Op: "runResult"})

	return err
}

func inputRow(st *models.State, rowID string) *enhanced.Node {
	for _, row := range st.GenerationData.Inputs.Items {
		if row.ID == rowID {
			return row
		}
	}

	return nil
}

func chatHistory(st *models.State, rowID string) ([]*enhanced.Node, bool) {
	for _, chat := range st.GenerationData.Messages.Items {
		history := chat.Field(models.RowHistory)

		if chat.ID == rowID {
			if history == nil {
				return nil, true
			}

			return history.Items, true
		}

		if history == nil {
			continue
		}

		for i, msg := range history.Items {
			if msg.ID == rowID {
				return history.Items[:i+1], true
			}
		}
	}

	return nil, false
}
