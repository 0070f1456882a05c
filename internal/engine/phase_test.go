package engine

import "testing"

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		name       string
		phase      phase
		event      folderEvent
		tombstone  bool
		wantPhase  phase
		wantEffect effect
	}{
		{
			name:  "idle delete outside arms pending timeout",
			phase: phaseIdle, event: eventDeleteOutside,
			wantPhase: phaseAwaitingCreate, wantEffect: effectArmPendingTimeout,
		},
		{
			name:  "idle create outside arms delayed restore",
			phase: phaseIdle, event: eventCreateOutside,
			wantPhase: phaseAwaitingDelete, wantEffect: effectArmDelayedRestore,
		},
		{
			name:  "idle create outside with fresh tombstone is suppressed",
			phase: phaseIdle, event: eventCreateOutside, tombstone: true,
			wantPhase: phaseIdle, wantEffect: effectSuppressTombstone,
		},
		{
			name:  "idle create in trash fires trash",
			phase: phaseIdle, event: eventCreateInTrash,
			wantPhase: phaseIdle, wantEffect: effectFireTrash,
		},
		{
			name:  "idle delete in trash fires restore",
			phase: phaseIdle, event: eventDeleteInTrash,
			wantPhase: phaseIdle, wantEffect: effectFireRestore,
		},
		{
			name:  "awaiting create resolves as rename",
			phase: phaseAwaitingCreate, event: eventCreateOutside,
			wantPhase: phaseIdle, wantEffect: effectCancelPending,
		},
		{
			name:  "awaiting create times out silently",
			phase: phaseAwaitingCreate, event: eventPendingTimeout,
			wantPhase: phaseIdle, wantEffect: effectNone,
		},
		{
			name:  "awaiting create sees trash arrival",
			phase: phaseAwaitingCreate, event: eventCreateInTrash,
			wantPhase: phaseIdle, wantEffect: effectFireTrash,
		},
		{
			name:  "awaiting create absorbs repeat delete",
			phase: phaseAwaitingCreate, event: eventDeleteOutside,
			wantPhase: phaseAwaitingCreate, wantEffect: effectNone,
		},
		{
			name:  "awaiting delete resolves as rename",
			phase: phaseAwaitingDelete, event: eventDeleteOutside,
			wantPhase: phaseIdle, wantEffect: effectCancelPending,
		},
		{
			name:  "awaiting delete restore timer fires",
			phase: phaseAwaitingDelete, event: eventRestoreTimer,
			wantPhase: phaseIdle, wantEffect: effectFireRestore,
		},
		{
			name:  "awaiting delete sees trash departure",
			phase: phaseAwaitingDelete, event: eventDeleteInTrash,
			wantPhase: phaseIdle, wantEffect: effectFireRestore,
		},
		{
			name:  "awaiting delete absorbs repeat create",
			phase: phaseAwaitingDelete, event: eventCreateOutside,
			wantPhase: phaseAwaitingDelete, wantEffect: effectNone,
		},
		{
			name:  "stale pending timeout in idle is ignored",
			phase: phaseIdle, event: eventPendingTimeout,
			wantPhase: phaseIdle, wantEffect: effectNone,
		},
		{
			name:  "stale restore timer in idle is ignored",
			phase: phaseIdle, event: eventRestoreTimer,
			wantPhase: phaseIdle, wantEffect: effectNone,
		},
		{
			name:  "stale restore timer while awaiting create is ignored",
			phase: phaseAwaitingCreate, event: eventRestoreTimer,
			wantPhase: phaseAwaitingCreate, wantEffect: effectNone,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotPhase, gotEffect := transition(tc.phase, tc.event, tc.tombstone)
			if gotPhase != tc.wantPhase || gotEffect != tc.wantEffect {
				t.Fatalf("transition(%v, %v, %v) = (%v, %v), want (%v, %v)",
					tc.phase, tc.event, tc.tombstone,
					gotPhase, gotEffect, tc.wantPhase, tc.wantEffect)
			}
		})
	}
}
