package actions

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/ledger"
)

// Invoker executes actions with deduplication
type Invoker struct {
	registry   *Registry
	ledger     *ledger.Ledger
	ctxFactory func(ctx context.Context) *Context
}

// NewInvoker creates a new action invoker. A nil ledger disables deduplication.
func NewInvoker(registry *Registry, l *ledger.Ledger, ctxFactory func(ctx context.Context) *Context) *Invoker {
	return &Invoker{
		registry:   registry,
		ledger:     l,
		ctxFactory: ctxFactory,
	}
}

// Invoke executes an action with the given idempotency key
// - For buttons: idempotencyKey = button_event_id (from Hue SSE)
// - For HTTP calls: idempotencyKey = Idempotency-Key header
// - For manual/programmatic calls: idempotencyKey = "" (no dedupe)
func (i *Invoker) Invoke(ctx context.Context, actionName string, args map[string]any, idempotencyKey string) error {
	return i.InvokeWithSource(ctx, actionName, args, idempotencyKey, "")
}

// InvokeWithSource is like Invoke but records the source in the ledger
func (i *Invoker) InvokeWithSource(ctx context.Context, actionName string, args map[string]any, idempotencyKey, source string) error {
	if idempotencyKey != "" && i.ledger != nil && i.ledger.HasCompleted(idempotencyKey) {
		log.Debug().
			Str("action", actionName).
			Str("idempotency_key", idempotencyKey).
			Msg("Action already completed, skipping")
		return nil
	}

	action, exists := i.registry.Get(actionName)
	if !exists {
		return fmt.Errorf("%w: %q", ErrActionNotFound, actionName)
	}

	logEvent := log.Debug().Str("action", actionName).Interface("args", args)
	if source != "" {
		logEvent = logEvent.Str("source", source)
	}
	logEvent.Msg("Executing action")

	err := action.Execute(i.ctxFactory(ctx), args)

	if err != nil {
		i.appendLedger(ledger.EventActionFailed, idempotencyKey, source, args, map[string]any{
			"action": actionName,
			"args":   args,
			"error":  err.Error(),
		})
		return err
	}

	i.appendLedger(ledger.EventActionCompleted, idempotencyKey, source, args, map[string]any{
		"action": actionName,
		"args":   args,
	})
	return nil
}

// HasAction checks if an action is registered
func (i *Invoker) HasAction(actionName string) bool {
	_, exists := i.registry.Get(actionName)
	return exists
}

// Registry returns the registry actions are looked up in.
func (i *Invoker) Registry() *Registry {
	return i.registry
}

// appendLedger records the outcome of keyed invocations only.
func (i *Invoker) appendLedger(eventType ledger.EventType, idempotencyKey, source string, args, payload map[string]any) {
	if idempotencyKey == "" || i.ledger == nil {
		return
	}
	entityID, _ := args["light"].(string)
	if err := i.ledger.AppendWithSource(eventType, idempotencyKey, source, entityID, payload); err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to append to ledger")
	}
}
