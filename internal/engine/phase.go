package engine

// phase is the per-identifier position in the rename/trash/restore
// disambiguation. Identifiers without an entry are idle.
type phase int

const (
	phaseIdle phase = iota
	phaseAwaitingCreate
	phaseAwaitingDelete
)

func (p phase) String() string {
	switch p {
	case phaseAwaitingCreate:
		return "awaiting-create"
	case phaseAwaitingDelete:
		return "awaiting-delete"
	default:
		return "idle"
	}
}

// folderEvent is one observation about an entity folder, the
// identifier already resolved by classification.
type folderEvent int

const (
	eventDeleteOutside folderEvent = iota // folder disappeared outside the trash zone
	eventDeleteInTrash                    // folder disappeared inside the trash zone
	eventCreateOutside                    // folder appeared outside the trash zone
	eventCreateInTrash                    // folder appeared inside the trash zone
	eventPendingTimeout                   // no matching create arrived in time
	eventRestoreTimer                     // delayed restore timer expired
)

func (e folderEvent) String() string {
	switch e {
	case eventDeleteOutside:
		return "delete-outside"
	case eventDeleteInTrash:
		return "delete-in-trash"
	case eventCreateOutside:
		return "create-outside"
	case eventCreateInTrash:
		return "create-in-trash"
	case eventPendingTimeout:
		return "pending-timeout"
	case eventRestoreTimer:
		return "restore-timer"
	default:
		return "unknown"
	}
}

// effect is what the engine must do after a transition. The transition
// function itself performs no I/O and arms no timers.
type effect int

const (
	effectNone effect = iota
	effectFireTrash
	effectFireRestore
	effectArmPendingTimeout
	effectArmDelayedRestore
	effectCancelPending
	effectSuppressTombstone
)

func (e effect) String() string {
	switch e {
	case effectFireTrash:
		return "fire-trash"
	case effectFireRestore:
		return "fire-restore"
	case effectArmPendingTimeout:
		return "arm-pending-timeout"
	case effectArmDelayedRestore:
		return "arm-delayed-restore"
	case effectCancelPending:
		return "cancel-pending"
	case effectSuppressTombstone:
		return "suppress-tombstone"
	default:
		return "none"
	}
}

// transition advances one identifier's phase for one folder event.
// tombstoneFresh reports whether the appearing folder matches a fresh
// rename tombstone, meaning the engine itself just produced it.
//
// Trash-zone events resolve immediately in every phase: a folder that
// shows up in the trash is a trash no matter what the identifier was
// doing, and a folder that vanishes from the trash is a restore. Both
// cancel whatever was pending so a move is billed exactly once.
func transition(p phase, ev folderEvent, tombstoneFresh bool) (phase, effect) {
	switch ev {
	case eventCreateInTrash:
		return phaseIdle, effectFireTrash
	case eventDeleteInTrash:
		return phaseIdle, effectFireRestore
	}

	switch p {
	case phaseIdle:
		switch ev {
		case eventDeleteOutside:
			return phaseAwaitingCreate, effectArmPendingTimeout
		case eventCreateOutside:
			if tombstoneFresh {
				return phaseIdle, effectSuppressTombstone
			}
			return phaseAwaitingDelete, effectArmDelayedRestore
		}

	case phaseAwaitingCreate:
		switch ev {
		case eventCreateOutside:
			// The delete was half of a rename or move.
			return phaseIdle, effectCancelPending
		case eventPendingTimeout:
			// Plain removal. Nothing to tell the remote.
			return phaseIdle, effectNone
		case eventDeleteOutside:
			return phaseAwaitingCreate, effectNone
		}

	case phaseAwaitingDelete:
		switch ev {
		case eventDeleteOutside:
			// The create was half of a rename or move.
			return phaseIdle, effectCancelPending
		case eventRestoreTimer:
			return phaseIdle, effectFireRestore
		case eventCreateOutside:
			return phaseAwaitingDelete, effectNone
		}
	}

	// Stale timer callbacks land here once the phase has moved on.
	return p, effectNone
}
