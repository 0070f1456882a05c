package engine

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/agentworkforce/pagemirror/internal/metadoc"
	"github.com/agentworkforce/pagemirror/internal/notify"
)

var errFolderLocated = errors.New("folder located")

// syncMetadata reconciles one entity's metadata document against the
// cached snapshot and pushes the minimal diff. The first observation
// of a document only primes the cache.
func (e *Engine) syncMetadata(identifier int64) {
	e.mu.Lock()
	if _, busy := e.metaInflight[identifier]; busy {
		e.mu.Unlock()
		// Re-arm so the change is looked at again once the running
		// sync finishes.
		e.debounce.Debounce(metaKey(identifier), e.win.ContentSettle, func() {
			e.syncMetadata(identifier)
		})
		return
	}
	e.metaInflight[identifier] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.metaInflight, identifier)
		e.mu.Unlock()
	}()

	doc, err := e.docs.Load(e.ctx, identifier)
	if err != nil {
		if errors.Is(err, metadoc.ErrNotFound) {
			e.log.Debug().Int64("identifier", identifier).Msg("metadata document gone")
		} else {
			e.log.Warn().Err(err).Int64("identifier", identifier).Msg("metadata document unreadable")
		}
		return
	}

	e.mu.Lock()
	snap, seen := e.snapshots[identifier]
	if !seen {
		e.snapshots[identifier] = MetadataSnapshot{Slug: doc.Slug, Title: doc.Title, Status: doc.Status}
		e.mu.Unlock()
		e.log.Debug().Int64("identifier", identifier).Msg("metadata snapshot primed")
		return
	}
	if e.cooldowns.Within(metaKey(identifier), e.win.MetadataCooldown) {
		e.mu.Unlock()
		e.log.Debug().Int64("identifier", identifier).Msg("metadata change within cooldown, ignored")
		return
	}
	diff := make(map[string]string)
	if doc.Slug != snap.Slug {
		diff["slug"] = doc.Slug
	}
	if doc.Title != snap.Title {
		diff["title"] = doc.Title
	}
	if doc.Status != snap.Status {
		diff["status"] = doc.Status
	}
	oldSlug := snap.Slug
	e.mu.Unlock()

	if len(diff) == 0 {
		return
	}

	if _, slugChanged := diff["slug"]; slugChanged {
		if err := e.renameForSlugChange(identifier, oldSlug, doc.Slug, &doc); err != nil {
			e.log.Error().Err(err).
				Int64("identifier", identifier).
				Str("oldSlug", oldSlug).
				Str("newSlug", doc.Slug).
				Msg("slug rename failed")
			e.publish(notify.Event{
				Type:       notify.EventError,
				Identifier: identifier,
				Slug:       doc.Slug,
				Message:    err.Error(),
			})
			// Snapshot untouched: the next document event recomputes
			// the same diff and retries.
			return
		}
	}

	if err := e.rc.PushMetadata(e.ctx, identifier, diff); err != nil {
		e.log.Error().Err(err).
			Int64("identifier", identifier).
			Msg("metadata push failed")
		e.publish(notify.Event{
			Type:       notify.EventError,
			Identifier: identifier,
			Slug:       doc.Slug,
			Message:    err.Error(),
		})
		return
	}

	e.mu.Lock()
	e.snapshots[identifier] = MetadataSnapshot{Slug: doc.Slug, Title: doc.Title, Status: doc.Status}
	e.mu.Unlock()
	e.cooldowns.Record(metaKey(identifier))

	e.log.Info().
		Int64("identifier", identifier).
		Strs("fields", diffKeys(diff)).
		Msg("metadata pushed")
	e.publish(notify.Event{
		Type:       notify.EventMetadataPushed,
		Identifier: identifier,
		Slug:       doc.Slug,
	})
}

// renameForSlugChange applies a slug edit: rename the entity folder
// and its prefixed files, point the document's file field at the new
// location, then tell the remote. The folder rename tolerates a
// pre-renamed target, so a retry after a partial failure converges.
func (e *Engine) renameForSlugChange(identifier int64, oldSlug, newSlug string, doc *metadoc.Document) error {
	oldName := oldSlug + "_" + strconv.FormatInt(identifier, 10)
	newName := newSlug + "_" + strconv.FormatInt(identifier, 10)

	parent, err := e.locateEntityParent(doc.File, oldName)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.tombstones.put(oldName, newName, identifier)
	e.mu.Unlock()

	if _, err := e.ws.RenameWithPrefix(e.ctx, parent, oldName, newName); err != nil {
		return err
	}

	doc.File = path.Join(parent, newName, newName+e.classify.ContentExt())
	if err := e.docs.Save(e.ctx, identifier, *doc); err != nil {
		return fmt.Errorf("update document file field: %w", err)
	}

	renamed, err := e.rc.RenameEntity(e.ctx, identifier, newSlug)
	if err != nil {
		return err
	}

	oldRel := path.Join(parent, oldName)
	newRel := path.Join(parent, newName)
	e.log.Info().
		Int64("identifier", identifier).
		Str("oldSlug", renamed.OldSlug).
		Str("newSlug", renamed.NewSlug).
		Str("path", newRel).
		Msg("entity renamed")
	e.publish(notify.Event{
		Type:       notify.EventEntityRenamed,
		Identifier: identifier,
		Slug:       newSlug,
		OldPath:    oldRel,
		NewPath:    newRel,
	})
	return nil
}

// locateEntityParent resolves the directory holding an entity folder,
// preferring the document's file field and falling back to a tree
// search when the field is empty.
func (e *Engine) locateEntityParent(file, folderName string) (string, error) {
	if strings.TrimSpace(file) != "" {
		rel := strings.Trim(path.Clean("/"+file), "/")
		return path.Dir(path.Dir(rel)), nil
	}
	parent := ""
	err := e.ws.Walk(e.ctx, "", func(rel string, info os.FileInfo) error {
		if rel == "." || !info.IsDir() {
			return nil
		}
		if path.Base(rel) == folderName {
			parent = path.Dir(rel)
			return errFolderLocated
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFolderLocated) {
		return "", err
	}
	if parent == "" {
		return "", fmt.Errorf("entity folder %s not found", folderName)
	}
	return parent, nil
}

func diffKeys(diff map[string]string) []string {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	return keys
}
