package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentworkforce/pagemirror/internal/notify"
	"github.com/agentworkforce/pagemirror/internal/remote"
)

// FolderActionRequest is one queued trash or restore decision.
type FolderActionRequest struct {
	Identifier int64
	Action     remote.FolderAction
	Slug       string
	Path       string
}

// Confirmer decides whether a batch of folder actions larger than the
// gate threshold may execute. Declining cancels the whole batch.
type Confirmer interface {
	ConfirmActions(ctx context.Context, batch []FolderActionRequest) bool
}

type allowConfirmer struct{}

func (allowConfirmer) ConfirmActions(context.Context, []FolderActionRequest) bool {
	return true
}

type policyConfirmer struct {
	allow bool
	log   zerolog.Logger
}

// NewPolicyConfirmer builds a Confirmer from a policy string. "allow"
// approves oversized batches, "deny" drops them, and "prompt" denies
// unless assumeYes is set, since the engine has no interactive channel
// of its own.
func NewPolicyConfirmer(policy string, assumeYes bool, log zerolog.Logger) Confirmer {
	allow := false
	switch policy {
	case "allow":
		allow = true
	case "deny":
		allow = false
	default:
		allow = assumeYes
	}
	return policyConfirmer{allow: allow, log: log.With().Str("component", "gate").Logger()}
}

func (p policyConfirmer) ConfirmActions(_ context.Context, batch []FolderActionRequest) bool {
	if p.allow {
		p.log.Info().Int("count", len(batch)).Msg("oversized folder action batch approved by policy")
		return true
	}
	p.log.Warn().Int("count", len(batch)).Msg("oversized folder action batch denied by policy")
	return false
}

// queueFolderActionLocked stages one folder action behind the gate
// window. The caller holds e.mu. Actions already recorded, queued or
// in flight for the same identifier and direction are dropped here.
func (e *Engine) queueFolderActionLocked(req FolderActionRequest) {
	key := actionKey(req.Identifier, req.Action)
	if e.cooldowns.Within(key, e.win.FolderCooldown) {
		e.log.Debug().
			Int64("identifier", req.Identifier).
			Str("action", string(req.Action)).
			Msg("folder action within cooldown, dropped")
		return
	}
	if _, busy := e.inflightActions[key]; busy {
		return
	}
	for _, queued := range e.pendingActions {
		if queued.Identifier == req.Identifier && queued.Action == req.Action {
			return
		}
	}
	e.pendingActions = append(e.pendingActions, req)
	e.debounce.Debounce(gateKey, e.win.Gate, e.flushActions)
}

// flushActions drains the staged batch once the gate window closes.
// Batches over the threshold need confirmation; declining drops every
// staged action without touching cooldowns, so the same filesystem
// state can trigger them again.
func (e *Engine) flushActions() {
	e.mu.Lock()
	batch := e.pendingActions
	e.pendingActions = nil
	if len(batch) == 0 {
		e.mu.Unlock()
		return
	}
	for _, req := range batch {
		e.inflightActions[actionKey(req.Identifier, req.Action)] = struct{}{}
	}
	oversized := len(batch) > e.gateLimit
	e.mu.Unlock()

	if oversized && !e.confirm.ConfirmActions(e.ctx, batch) {
		e.mu.Lock()
		for _, req := range batch {
			delete(e.inflightActions, actionKey(req.Identifier, req.Action))
		}
		e.mu.Unlock()
		e.log.Warn().Int("count", len(batch)).Msg("folder action batch cancelled")
		e.publish(notify.Event{Type: notify.EventActionsBlocked, Count: len(batch)})
		return
	}

	for _, req := range batch {
		e.executeFolderAction(req)
	}
}

func (e *Engine) executeFolderAction(req FolderActionRequest) {
	key := actionKey(req.Identifier, req.Action)
	err := e.rc.SetFolderAction(e.ctx, req.Identifier, req.Action)

	// The success cooldown is recorded before the in-flight mark is
	// released, so a duplicate observed between the two still hits a
	// dedupe layer.
	if err == nil {
		e.cooldowns.Record(key)
	}
	e.mu.Lock()
	delete(e.inflightActions, key)
	e.mu.Unlock()

	if err != nil {
		e.log.Error().Err(err).
			Int64("identifier", req.Identifier).
			Str("action", string(req.Action)).
			Msg("folder action failed")
		e.publish(notify.Event{
			Type:       notify.EventError,
			Identifier: req.Identifier,
			Path:       req.Path,
			Message:    err.Error(),
		})
		return
	}

	eventType := notify.EventEntityTrashed
	if req.Action == remote.ActionRestore {
		eventType = notify.EventEntityRestored
	}
	e.log.Info().
		Int64("identifier", req.Identifier).
		Str("slug", req.Slug).
		Str("action", string(req.Action)).
		Msg("folder action applied")
	e.publish(notify.Event{
		Type:       eventType,
		Identifier: req.Identifier,
		Slug:       req.Slug,
		Path:       req.Path,
	})
}
