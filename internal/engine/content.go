package engine

import (
	"github.com/agentworkforce/pagemirror/internal/notify"
)

// syncContent pushes one settled content file to the remote. Pushes
// inside the per-path cooldown are deferred, not dropped, so an edit
// made right after a push still reaches the remote.
func (e *Engine) syncContent(cls Classification) {
	key := contentKey(cls.Rel)
	if e.cooldowns.Within(key, e.win.ContentCooldown) {
		c := cls
		e.debounce.Debounce(key, e.win.ContentCooldown, func() {
			e.syncContent(c)
		})
		e.log.Debug().Str("path", cls.Rel).Msg("content push within cooldown, deferred")
		return
	}

	state, err := e.rc.RecentlyExported(e.ctx, cls.Identifier)
	if err != nil {
		// A failed probe counts as not exported; the push proceeds.
		e.log.Warn().Err(err).
			Int64("identifier", cls.Identifier).
			Msg("export state probe failed")
	} else if state.Skip {
		e.log.Debug().
			Int64("identifier", cls.Identifier).
			Str("path", cls.Rel).
			Msg("content change is a remote export echo, skipped")
		e.publish(notify.Event{
			Type:            notify.EventContentSkipped,
			Identifier:      cls.Identifier,
			Path:            cls.Rel,
			UnchangedRanges: state.UnchangedRanges,
		})
		return
	}

	data, err := e.ws.ReadFile(e.ctx, cls.Rel)
	if err != nil {
		e.log.Warn().Err(err).Str("path", cls.Rel).Msg("content file unreadable")
		return
	}

	if err := e.rc.PushContent(e.ctx, cls.Identifier, data); err != nil {
		e.log.Error().Err(err).
			Int64("identifier", cls.Identifier).
			Str("path", cls.Rel).
			Msg("content push failed")
		e.publish(notify.Event{
			Type:       notify.EventError,
			Identifier: cls.Identifier,
			Path:       cls.Rel,
			Message:    err.Error(),
		})
		return
	}

	e.cooldowns.Record(key)
	e.log.Info().
		Int64("identifier", cls.Identifier).
		Str("path", cls.Rel).
		Int("bytes", len(data)).
		Msg("content pushed")
	e.publish(notify.Event{
		Type:       notify.EventContentPushed,
		Identifier: cls.Identifier,
		Path:       cls.Rel,
	})
}
