// Package storage provides the workspace capability the engine uses
// for every filesystem access. The backend is selected once at
// startup; flows never branch on backend kind.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Workspace is a rooted file tree. All paths are slash-separated and
// relative to the root. Every call is context-aware so callers on
// slow (remote-mounted) backends can bound waits; none may be made
// while holding engine state locks.
type Workspace struct {
	fs afero.Fs
}

// Open selects the backend for root. Plain paths and file:// roots
// map to the local disk backend, memory:// to an in-memory tree.
func Open(root string) (*Workspace, error) {
	switch {
	case root == "memory://" || strings.HasPrefix(root, "memory://"):
		return NewMemory(), nil
	case strings.HasPrefix(root, "file://"):
		root = strings.TrimPrefix(root, "file://")
	}
	return NewLocal(root)
}

// NewLocal roots a workspace at an existing directory on local disk.
func NewLocal(root string) (*Workspace, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s: not a directory", root)
	}
	return &Workspace{fs: afero.NewBasePathFs(afero.NewOsFs(), root)}, nil
}

// NewMemory returns a workspace backed by an in-memory tree.
func NewMemory() *Workspace {
	return &Workspace{fs: afero.NewMemMapFs()}
}

// native converts a slash-relative path into the rooted form the
// backend expects. The empty string and "." address the root itself.
func (w *Workspace) native(rel string) string {
	return filepath.FromSlash(path.Clean("/" + rel))
}

// Exists reports whether rel exists as a file or directory.
func (w *Workspace) Exists(ctx context.Context, rel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(w.fs, w.native(rel))
}

// DirExists reports whether rel exists and is a directory.
func (w *Workspace) DirExists(ctx context.Context, rel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.DirExists(w.fs, w.native(rel))
}

// ReadFile returns the contents of the file at rel.
func (w *Workspace) ReadFile(ctx context.Context, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(w.fs, w.native(rel))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// WriteFile writes data to rel atomically: the bytes land in a
// temporary file in the same directory which is then renamed over the
// target, so readers never observe a partial write.
func (w *Workspace) WriteFile(ctx context.Context, rel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := w.native(rel)
	dir := filepath.Dir(target)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	tmp, err := afero.TempFile(w.fs, dir, ".pagemirror-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = w.fs.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := w.fs.Rename(tmpName, target); err != nil {
		// The in-memory backend refuses to rename over an existing
		// file; clear the target and retry once.
		_ = w.fs.Remove(target)
		if err := w.fs.Rename(tmpName, target); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	committed = true
	return nil
}

// ReadDir lists the entries of the directory at rel.
func (w *Workspace) ReadDir(ctx context.Context, rel string) ([]os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(w.fs, w.native(rel))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}
	return infos, nil
}

// Rename moves oldRel to newRel.
func (w *Workspace) Rename(ctx context.Context, oldRel, newRel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.fs.Rename(w.native(oldRel), w.native(newRel)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", oldRel, newRel, err)
	}
	return nil
}

// RemoveAll deletes rel and everything under it.
func (w *Workspace) RemoveAll(ctx context.Context, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.fs.RemoveAll(w.native(rel)); err != nil {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

// MkdirAll creates the directory rel along with any missing parents.
func (w *Workspace) MkdirAll(ctx context.Context, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.fs.MkdirAll(w.native(rel), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", rel, err)
	}
	return nil
}

// Walk visits every file and directory under rel with slash-relative
// paths. The root itself is reported as ".".
func (w *Workspace) Walk(ctx context.Context, rel string, fn func(rel string, info os.FileInfo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	root := w.native(rel)
	return afero.Walk(w.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		out := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if out == "" {
			out = "."
		}
		return fn(out, info)
	})
}

// prefixSwap maps a file name carrying the old folder-name prefix to
// the same name under the new prefix. The prefix must be the whole
// name or be followed by a separator so that "about" never captures
// "aboutus.html".
func prefixSwap(name, oldPrefix, newPrefix string) (string, bool) {
	if !strings.HasPrefix(name, oldPrefix) {
		return "", false
	}
	rest := name[len(oldPrefix):]
	if rest != "" && rest[0] != '.' && rest[0] != '_' && rest[0] != '-' {
		return "", false
	}
	return newPrefix + rest, true
}

// RenameWithPrefix renames the folder parentRel/oldName to
// parentRel/newName and renames every contained file whose name is
// prefixed with oldName to carry the new prefix instead. When the
// target folder already exists (the backend or another writer renamed
// it first) the folder move is skipped and only the contained file
// prefixes are fixed up inside the target. Returns whether the folder
// itself was moved.
func (w *Workspace) RenameWithPrefix(ctx context.Context, parentRel, oldName, newName string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	oldDir := path.Join(parentRel, oldName)
	newDir := path.Join(parentRel, newName)

	targetExists, err := afero.DirExists(w.fs, w.native(newDir))
	if err != nil {
		return false, fmt.Errorf("rename %s: %w", oldDir, err)
	}
	folderMoved := false
	if !targetExists {
		if err := w.fs.Rename(w.native(oldDir), w.native(newDir)); err != nil {
			return false, fmt.Errorf("rename %s to %s: %w", oldDir, newDir, err)
		}
		folderMoved = true
	}
	if err := w.renamePrefixed(ctx, newDir, oldName, newName); err != nil {
		return folderMoved, err
	}
	return folderMoved, nil
}

func (w *Workspace) renamePrefixed(ctx context.Context, dirRel, oldPrefix, newPrefix string) error {
	infos, err := afero.ReadDir(w.fs, w.native(dirRel))
	if err != nil {
		return fmt.Errorf("list %s: %w", dirRel, err)
	}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		renamed, ok := prefixSwap(info.Name(), oldPrefix, newPrefix)
		if !ok || renamed == info.Name() {
			continue
		}
		from := path.Join(dirRel, info.Name())
		to := path.Join(dirRel, renamed)
		if err := w.fs.Rename(w.native(from), w.native(to)); err != nil {
			return fmt.Errorf("rename %s to %s: %w", from, to, err)
		}
	}
	return nil
}

// MergeFolder moves every file under srcRel into dstRel, rewriting
// file-name prefixes from oldPrefix to newPrefix and overwriting
// what is already there, then deletes srcRel. Subdirectory structure
// is preserved.
func (w *Workspace) MergeFolder(ctx context.Context, srcRel, dstRel, oldPrefix, newPrefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	srcNative := w.native(srcRel)
	err := afero.Walk(w.fs, srcNative, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		sub, err := filepath.Rel(srcNative, p)
		if err != nil {
			return err
		}
		sub = filepath.ToSlash(sub)
		base := path.Base(sub)
		if renamed, ok := prefixSwap(base, oldPrefix, newPrefix); ok {
			base = renamed
		}
		target := path.Join(dstRel, path.Dir(sub), base)
		data, err := afero.ReadFile(w.fs, p)
		if err != nil {
			return err
		}
		return w.WriteFile(ctx, target, data)
	})
	if err != nil {
		return fmt.Errorf("merge %s into %s: %w", srcRel, dstRel, err)
	}
	if err := w.fs.RemoveAll(srcNative); err != nil {
		return fmt.Errorf("merge %s into %s: %w", srcRel, dstRel, err)
	}
	return nil
}
