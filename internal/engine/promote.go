package engine

import (
	"encoding/json"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gosimple/slug"

	"github.com/agentworkforce/pagemirror/internal/notify"
	"github.com/agentworkforce/pagemirror/internal/remote"
)

// creationArtifact is written next to the tree after a successful
// promotion so external automation can pick up the outcome.
type creationArtifact struct {
	Identifier  int64  `json:"identifier"`
	Slug        string `json:"slug"`
	Collection  string `json:"collection"`
	Folder      string `json:"folder"`
	ContentFile string `json:"contentFile"`
	CreatedAt   string `json:"createdAt"`
}

func artifactPath(identifier int64) string {
	return path.Join(".pagemirror", "creations", strconv.FormatInt(identifier, 10)+".json")
}

// handleBareFolder routes the appearance of an identifier-less folder:
// a duplicate of a fresh rename is merged away, an already-processed
// folder is left alone, anything else settles toward promotion.
func (e *Engine) handleBareFolder(cls Classification) {
	e.mu.Lock()
	if ts, ok := e.tombstones.lookupOld(cls.Name); ok {
		e.mu.Unlock()
		e.mergeDuplicate(cls, ts)
		return
	}
	if _, done := e.processed[cls.Rel]; done {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.schedulePromotion(cls)
}

func (e *Engine) schedulePromotion(cls Classification) {
	c := cls
	e.debounce.Debounce(promoteKey(c.Rel), e.win.PromotionSettle, func() {
		e.promote(c)
	})
}

// promote registers a settled bare folder as a new remote entity and
// renames the local tree to carry the assigned identifier.
func (e *Engine) promote(cls Classification) {
	exists, err := e.ws.DirExists(e.ctx, cls.Rel)
	if err != nil || !exists {
		return
	}
	primary := e.classify.PrimaryFile(cls.Rel, cls.Name)
	hasPrimary, err := e.ws.Exists(e.ctx, primary)
	if err != nil {
		e.log.Warn().Err(err).Str("path", primary).Msg("primary file check failed")
		return
	}
	if !hasPrimary {
		// Not processed yet: the file-added event retries promotion.
		e.log.Debug().Str("path", cls.Rel).Msg("primary file missing, promotion deferred")
		return
	}

	e.mu.Lock()
	if ts, ok := e.tombstones.lookupOld(cls.Name); ok {
		e.mu.Unlock()
		e.mergeDuplicate(cls, ts)
		return
	}
	if _, done := e.processed[cls.Rel]; done {
		e.mu.Unlock()
		return
	}
	e.processed[cls.Rel] = struct{}{}
	e.mu.Unlock()

	title := titleFromName(cls.Name)
	provisional := slug.Make(cls.Name)
	created, err := e.rc.CreateEntity(e.ctx, cls.Collection, title, provisional)
	if err != nil {
		e.mu.Lock()
		delete(e.processed, cls.Rel)
		e.mu.Unlock()
		e.log.Error().Err(err).
			Str("collection", cls.Collection).
			Str("path", cls.Rel).
			Msg("entity creation failed")
		e.publish(notify.Event{
			Type:       notify.EventError,
			Collection: cls.Collection,
			Path:       cls.Rel,
			Message:    err.Error(),
		})
		return
	}

	newName := created.Slug + "_" + strconv.FormatInt(created.Identifier, 10)

	// The tombstone goes in before the rename so the watcher echo of
	// the rename, or a duplicate re-creation under the old name, is
	// recognized instead of booked as user activity.
	e.mu.Lock()
	e.tombstones.put(cls.Name, newName, created.Identifier)
	e.mu.Unlock()

	parent := path.Dir(cls.Rel)
	folderMoved, err := e.ws.RenameWithPrefix(e.ctx, parent, cls.Name, newName)
	if err != nil {
		// The entity exists remotely; the local tree is left for
		// manual resolution rather than rolled back.
		e.log.Error().Err(err).
			Int64("identifier", created.Identifier).
			Str("path", cls.Rel).
			Msg("local rename after creation failed")
		e.publish(notify.Event{
			Type:       notify.EventError,
			Identifier: created.Identifier,
			Path:       cls.Rel,
			Message:    err.Error(),
		})
		return
	}

	e.mu.Lock()
	delete(e.processed, cls.Rel)
	e.mu.Unlock()

	newRel := path.Join(parent, newName)
	e.writeCreationArtifact(created, cls.Collection, newRel, newName)

	e.log.Info().
		Int64("identifier", created.Identifier).
		Str("collection", cls.Collection).
		Str("slug", created.Slug).
		Str("path", newRel).
		Bool("folderMoved", folderMoved).
		Msg("entity promoted")
	e.publish(notify.Event{
		Type:       notify.EventEntityCreated,
		Identifier: created.Identifier,
		Collection: cls.Collection,
		Slug:       created.Slug,
		Path:       newRel,
	})
	e.publish(notify.Event{
		Type:       notify.EventEntityRenamed,
		Identifier: created.Identifier,
		OldPath:    cls.Rel,
		NewPath:    newRel,
	})
}

// mergeDuplicate folds a folder re-created under a tombstone's old
// name into the renamed target. The tombstone stays until its window
// elapses, after which the same name means a deliberate new entity.
func (e *Engine) mergeDuplicate(cls Classification, ts renameTombstone) {
	dst := path.Join(path.Dir(cls.Rel), ts.newName)
	if err := e.ws.MergeFolder(e.ctx, cls.Rel, dst, cls.Name, ts.newName); err != nil {
		e.log.Error().Err(err).
			Str("src", cls.Rel).
			Str("dst", dst).
			Msg("duplicate folder merge failed")
		e.publish(notify.Event{
			Type:       notify.EventError,
			Identifier: ts.identifier,
			Path:       cls.Rel,
			Message:    err.Error(),
		})
		return
	}
	e.log.Info().
		Int64("identifier", ts.identifier).
		Str("src", cls.Rel).
		Str("dst", dst).
		Msg("duplicate folder merged")
	e.publish(notify.Event{
		Type:       notify.EventFolderMerged,
		Identifier: ts.identifier,
		OldPath:    cls.Rel,
		NewPath:    dst,
	})
}

func (e *Engine) writeCreationArtifact(created remote.Created, collection, folderRel, folderName string) {
	artifact := creationArtifact{
		Identifier:  created.Identifier,
		Slug:        created.Slug,
		Collection:  collection,
		Folder:      folderRel,
		ContentFile: e.classify.PrimaryFile(folderRel, folderName),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return
	}
	if err := e.ws.WriteFile(e.ctx, artifactPath(created.Identifier), append(data, '\n')); err != nil {
		e.log.Warn().Err(err).
			Int64("identifier", created.Identifier).
			Msg("creation artifact not written")
	}
}

// titleFromName derives a provisional human title from a folder name,
// treating dashes and underscores as word breaks.
func titleFromName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_'
	})
	if len(words) == 0 {
		return name
	}
	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(r)) + word[size:]
	}
	return strings.Join(words, " ")
}
