// Package engine reconciles filesystem changes under a watched root
// with a remote content store. One Engine instance serves one remote
// connection; Close releases every timer and cache it owns.
package engine

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentworkforce/pagemirror/internal/metadoc"
	"github.com/agentworkforce/pagemirror/internal/notify"
	"github.com/agentworkforce/pagemirror/internal/pacing"
	"github.com/agentworkforce/pagemirror/internal/remote"
	"github.com/agentworkforce/pagemirror/internal/storage"
	"github.com/agentworkforce/pagemirror/internal/watchfs"
)

// Windows holds every timing policy the engine applies. The values
// are tuned for local disks; remote-mounted filesystems with slower
// event delivery may need wider windows.
type Windows struct {
	// Pending is how long a delete waits for its matching create
	// before being treated as a plain removal.
	Pending time.Duration
	// DelayedRestore is how long a create waits for its matching
	// delete before being treated as a restore.
	DelayedRestore time.Duration
	// PromotionSettle is how long a bare folder may settle before the
	// promotion workflow inspects it.
	PromotionSettle time.Duration
	// ContentSettle is the write debounce applied to content files and
	// metadata documents.
	ContentSettle time.Duration
	// FolderCooldown suppresses duplicate trash/restore calls per
	// identifier and action.
	FolderCooldown time.Duration
	// MetadataCooldown suppresses metadata echoes after a push.
	MetadataCooldown time.Duration
	// ContentCooldown spaces out content pushes per path.
	ContentCooldown time.Duration
	// TombstoneTTL is how long a rename tombstone explains folder
	// reappearances before an identical name means a new entity.
	TombstoneTTL time.Duration
	// Gate is how long queued folder actions collect before the batch
	// is sized against the confirmation threshold.
	Gate time.Duration
}

func (w Windows) withDefaults() Windows {
	if w.Pending <= 0 {
		w.Pending = 3 * time.Second
	}
	if w.DelayedRestore <= 0 {
		w.DelayedRestore = time.Second
	}
	if w.PromotionSettle <= 0 {
		w.PromotionSettle = 2 * time.Second
	}
	if w.ContentSettle <= 0 {
		w.ContentSettle = time.Second
	}
	if w.FolderCooldown <= 0 {
		w.FolderCooldown = 3 * time.Second
	}
	if w.MetadataCooldown <= 0 {
		w.MetadataCooldown = 3 * time.Second
	}
	if w.ContentCooldown <= 0 {
		w.ContentCooldown = 3 * time.Second
	}
	if w.TombstoneTTL <= 0 {
		w.TombstoneTTL = 30 * time.Second
	}
	if w.Gate <= 0 {
		w.Gate = 500 * time.Millisecond
	}
	return w
}

// MetadataSnapshot is the last remote-acknowledged view of an
// entity's tracked metadata fields.
type MetadataSnapshot struct {
	Slug   string
	Title  string
	Status string
}

// pendingTransition records the origin of a delete or create that is
// waiting for its counter-event.
type pendingTransition struct {
	originPath string
	slug       string
	at         time.Time
}

// Options configures a new Engine. Workspace, Remote and Docs are
// required; everything else has working defaults.
type Options struct {
	Workspace     *storage.Workspace
	Remote        remote.Client
	Docs          *metadoc.Store
	Broadcast     *notify.Broadcaster
	Confirmer     Confirmer
	Layout        Layout
	Windows       Windows
	GateThreshold int
	Logger        zerolog.Logger
}

type Engine struct {
	ws        *storage.Workspace
	rc        remote.Client
	docs      *metadoc.Store
	bus       *notify.Broadcaster
	confirm   Confirmer
	classify  *Classifier
	win       Windows
	gateLimit int
	log       zerolog.Logger

	debounce  *pacing.Debouncer
	cooldowns *pacing.Cooldowns

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// mu guards the maps below. It is never held across workspace or
	// remote I/O; timer callbacks re-acquire it on entry.
	mu              sync.Mutex
	phases          map[int64]phase
	pending         map[int64]pendingTransition
	tombstones      *tombstoneSet
	snapshots       map[int64]MetadataSnapshot
	processed       map[string]struct{}
	pendingActions  []FolderActionRequest
	inflightActions map[string]struct{}
	metaInflight    map[int64]struct{}
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Workspace == nil {
		return nil, errors.New("engine: workspace is required")
	}
	if opts.Remote == nil {
		return nil, errors.New("engine: remote client is required")
	}
	if opts.Docs == nil {
		return nil, errors.New("engine: metadata store is required")
	}
	if opts.Broadcast == nil {
		opts.Broadcast = notify.NewBroadcaster()
	}
	if opts.Confirmer == nil {
		opts.Confirmer = allowConfirmer{}
	}
	if opts.GateThreshold <= 0 {
		opts.GateThreshold = 5
	}
	win := opts.Windows.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ws:              opts.Workspace,
		rc:              opts.Remote,
		docs:            opts.Docs,
		bus:             opts.Broadcast,
		confirm:         opts.Confirmer,
		classify:        NewClassifier(opts.Layout),
		win:             win,
		gateLimit:       opts.GateThreshold,
		log:             opts.Logger.With().Str("component", "engine").Logger(),
		debounce:        pacing.NewDebouncer(),
		cooldowns:       pacing.NewCooldowns(),
		ctx:             ctx,
		cancel:          cancel,
		phases:          make(map[int64]phase),
		pending:         make(map[int64]pendingTransition),
		tombstones:      newTombstoneSet(win.TombstoneTTL),
		snapshots:       make(map[int64]MetadataSnapshot),
		processed:       make(map[string]struct{}),
		inflightActions: make(map[string]struct{}),
		metaInflight:    make(map[int64]struct{}),
	}, nil
}

// Run consumes watcher events until ctx is cancelled, the engine is
// closed, or the channel closes. Events are handled serially so
// same-identifier ordering follows arrival order.
func (e *Engine) Run(ctx context.Context, events <-chan watchfs.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.Handle(ev)
		}
	}
}

// Handle routes one watcher event into the matching flow. Paths the
// classifier cannot read are dropped here.
func (e *Engine) Handle(ev watchfs.Event) {
	cls := e.classify.Classify(ev.Path)
	switch cls.Kind {
	case KindMetadataDoc:
		if ev.Kind == watchfs.KindRemoved {
			return
		}
		id := cls.Identifier
		e.debounce.Debounce(metaKey(id), e.win.ContentSettle, func() {
			e.syncMetadata(id)
		})

	case KindContentFile:
		if ev.Kind == watchfs.KindRemoved {
			return
		}
		if cls.HasIdentifier {
			c := cls
			e.debounce.Debounce(contentKey(c.Rel), e.win.ContentSettle, func() {
				e.syncContent(c)
			})
			return
		}
		// A bare content file may be the primary file a deferred
		// promotion is waiting on.
		parent := e.classify.Classify(path.Dir(cls.Rel))
		if parent.Kind == KindBareFolder {
			e.handleBareFolder(parent)
		}

	case KindEntityFolder:
		if ev.Kind == watchfs.KindModified {
			return
		}
		e.handleFolderEvent(cls, ev.Kind)

	case KindBareFolder:
		if ev.Kind == watchfs.KindCreated {
			e.handleBareFolder(cls)
		}
	}
}

func (e *Engine) handleFolderEvent(cls Classification, kind watchfs.Kind) {
	var ev folderEvent
	switch {
	case kind == watchfs.KindRemoved && cls.InTrash:
		ev = eventDeleteInTrash
	case kind == watchfs.KindRemoved:
		ev = eventDeleteOutside
	case cls.InTrash:
		ev = eventCreateInTrash
	default:
		ev = eventCreateOutside
	}
	e.applyFolderEvent(cls, ev)
}

// applyFolderEvent runs one event through the per-identifier state
// machine and carries out the resulting effect. Timer callbacks
// re-enter here with their synthetic events.
func (e *Engine) applyFolderEvent(cls Classification, ev folderEvent) {
	id := cls.Identifier

	e.mu.Lock()
	if ev == eventCreateOutside {
		// A folder reappearing under a tombstone's old name is a
		// leftover duplicate of a rename, not a new observation.
		if ts, ok := e.tombstones.lookupOld(cls.Name); ok {
			e.mu.Unlock()
			e.mergeDuplicate(cls, ts)
			return
		}
	}
	fresh := false
	if ev == eventCreateOutside {
		fresh = e.tombstones.matchesNew(cls.Name, id)
	}

	cur := e.phases[id]
	next, eff := transition(cur, ev, fresh)
	prev := e.pending[id]

	if next == phaseIdle {
		delete(e.phases, id)
		delete(e.pending, id)
		e.debounce.Cancel(pendingKey(id))
	} else {
		e.phases[id] = next
	}

	switch eff {
	case effectArmPendingTimeout:
		e.pending[id] = pendingTransition{originPath: cls.Rel, slug: cls.Slug, at: time.Now()}
		c := cls
		e.debounce.Debounce(pendingKey(id), e.win.Pending, func() {
			e.applyFolderEvent(c, eventPendingTimeout)
		})

	case effectArmDelayedRestore:
		e.pending[id] = pendingTransition{originPath: cls.Rel, slug: cls.Slug, at: time.Now()}
		c := cls
		e.debounce.Debounce(pendingKey(id), e.win.DelayedRestore, func() {
			e.applyFolderEvent(c, eventRestoreTimer)
		})

	case effectFireTrash:
		e.queueFolderActionLocked(FolderActionRequest{
			Identifier: id,
			Action:     remote.ActionTrash,
			Slug:       cls.Slug,
			Path:       cls.Rel,
		})

	case effectFireRestore:
		e.queueFolderActionLocked(FolderActionRequest{
			Identifier: id,
			Action:     remote.ActionRestore,
			Slug:       cls.Slug,
			Path:       cls.Rel,
		})

	case effectCancelPending:
		e.log.Debug().
			Int64("identifier", id).
			Str("from", prev.originPath).
			Str("to", cls.Rel).
			Msg("delete/create pair resolved as rename")

	case effectSuppressTombstone:
		e.log.Debug().
			Int64("identifier", id).
			Str("path", cls.Rel).
			Msg("own rename echo suppressed")

	case effectNone:
		// Stale timer callbacks carry the same event but find the
		// phase already moved on; only a real wait gets the line.
		if ev == eventPendingTimeout && cur == phaseAwaitingCreate {
			e.log.Debug().
				Int64("identifier", id).
				Str("slug", prev.slug).
				Str("path", prev.originPath).
				Dur("waited", time.Since(prev.at)).
				Msg("pending delete expired without a matching create")
		}
	}
	e.mu.Unlock()
}

// Close cancels outstanding timers and clears every cache. The engine
// must not be used afterwards.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		e.debounce.Stop()
		e.mu.Lock()
		e.phases = make(map[int64]phase)
		e.pending = make(map[int64]pendingTransition)
		e.snapshots = make(map[int64]MetadataSnapshot)
		e.processed = make(map[string]struct{})
		e.pendingActions = nil
		e.inflightActions = make(map[string]struct{})
		e.metaInflight = make(map[int64]struct{})
		e.tombstones.clear()
		e.mu.Unlock()
		e.cooldowns.Reset()
		e.log.Debug().Msg("engine closed")
	})
}

// Snapshot returns the cached metadata view for an identifier, mostly
// for tests and diagnostics.
func (e *Engine) Snapshot(identifier int64) (MetadataSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.snapshots[identifier]
	return snap, ok
}

func (e *Engine) publish(ev notify.Event) {
	e.bus.Publish(ev)
}

const gateKey = "gate"

func pendingKey(identifier int64) string {
	return "pending/" + strconv.FormatInt(identifier, 10)
}

func metaKey(identifier int64) string {
	return "meta/" + strconv.FormatInt(identifier, 10)
}

func contentKey(rel string) string {
	return "content/" + rel
}

func promoteKey(rel string) string {
	return "promote/" + rel
}

func actionKey(identifier int64, action remote.FolderAction) string {
	return "folder/" + strconv.FormatInt(identifier, 10) + "/" + string(action)
}
