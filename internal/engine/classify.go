package engine

import (
	"path"
	"strconv"
	"strings"
)

// PathKind tags what a watched path means to the engine.
type PathKind int

const (
	KindOther PathKind = iota
	KindEntityFolder
	KindBareFolder
	KindContentFile
	KindMetadataDoc
)

func (k PathKind) String() string {
	switch k {
	case KindEntityFolder:
		return "entity-folder"
	case KindBareFolder:
		return "bare-folder"
	case KindContentFile:
		return "content-file"
	case KindMetadataDoc:
		return "metadata-doc"
	default:
		return "other"
	}
}

// Classification is the semantic reading of one watched path. It is
// produced once per event and consumed by every flow; nothing else
// re-derives path shape.
type Classification struct {
	Rel             string
	Name            string
	Slug            string
	Identifier      int64
	HasIdentifier   bool
	Collection      string
	InTrash         bool
	LooksLikeEntity bool
	Kind            PathKind
}

// Layout describes the naming convention of the watched tree.
type Layout struct {
	Collections []string
	TrashDir    string
	DataDir     string
	ContentExt  string
}

func (l Layout) withDefaults() Layout {
	if len(l.Collections) == 0 {
		l.Collections = []string{"pages", "posts"}
	}
	if strings.TrimSpace(l.TrashDir) == "" {
		l.TrashDir = "_trash"
	}
	if strings.TrimSpace(l.DataDir) == "" {
		l.DataDir = "_data"
	}
	if strings.TrimSpace(l.ContentExt) == "" {
		l.ContentExt = ".html"
	}
	if !strings.HasPrefix(l.ContentExt, ".") {
		l.ContentExt = "." + l.ContentExt
	}
	return l
}

// Classifier maps raw paths to classifications. Pure: no state beyond
// the layout, no side effects.
type Classifier struct {
	collections map[string]struct{}
	trashDir    string
	dataDir     string
	contentExt  string
}

func NewClassifier(layout Layout) *Classifier {
	layout = layout.withDefaults()
	collections := make(map[string]struct{}, len(layout.Collections))
	for _, c := range layout.Collections {
		c = strings.TrimSpace(c)
		if c != "" {
			collections[c] = struct{}{}
		}
	}
	return &Classifier{
		collections: collections,
		trashDir:    layout.TrashDir,
		dataDir:     layout.DataDir,
		contentExt:  layout.ContentExt,
	}
}

// ContentExt returns the primary content file extension, dot included.
func (c *Classifier) ContentExt() string {
	return c.contentExt
}

// PrimaryFile returns the primary content file path for an entity
// folder.
func (c *Classifier) PrimaryFile(folderRel, folderName string) string {
	return path.Join(folderRel, folderName+c.contentExt)
}

// Classify reads the semantic meaning of a slash-relative path.
// Unclassifiable paths come back as KindOther and are ignored by
// callers.
func (c *Classifier) Classify(rel string) Classification {
	rel = strings.Trim(path.Clean("/"+rel), "/")
	if rel == "" || rel == "." {
		return Classification{Rel: rel}
	}
	segs := strings.Split(rel, "/")
	for _, seg := range segs {
		if strings.HasPrefix(seg, ".") {
			return Classification{Rel: rel}
		}
	}

	name := segs[len(segs)-1]
	out := Classification{Rel: rel, Name: name}

	// Metadata documents live flat under the data directory.
	if segs[0] == c.dataDir {
		if len(segs) == 2 && strings.HasSuffix(name, ".json") {
			if id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64); err == nil && id > 0 {
				out.Identifier = id
				out.HasIdentifier = true
				out.Kind = KindMetadataDoc
			}
		}
		return out
	}

	for _, seg := range segs[:len(segs)-1] {
		if seg == c.trashDir {
			out.InTrash = true
		}
		if out.Collection == "" && seg != c.trashDir {
			if _, ok := c.collections[seg]; ok {
				out.Collection = seg
			}
		}
	}
	if name == c.trashDir {
		return Classification{Rel: rel, Name: name, InTrash: out.InTrash, Collection: out.Collection}
	}

	if ext := path.Ext(name); ext != "" {
		if ext != c.contentExt {
			return out
		}
		stem := strings.TrimSuffix(name, ext)
		out.Kind = KindContentFile
		if slug, id, ok := splitEntityName(stem); ok {
			out.Slug = slug
			out.Identifier = id
			out.HasIdentifier = true
		} else {
			out.Slug = stem
		}
		return out
	}

	if slug, id, ok := splitEntityName(name); ok {
		out.Slug = slug
		out.Identifier = id
		out.HasIdentifier = true
		out.LooksLikeEntity = true
		out.Kind = KindEntityFolder
		return out
	}

	// Bare folders qualify for promotion only directly under a
	// recognized collection, outside the trash zone.
	if !out.InTrash && len(segs) >= 2 {
		if _, ok := c.collections[segs[len(segs)-2]]; ok {
			out.Slug = name
			out.Kind = KindBareFolder
		}
	}
	return out
}

// splitEntityName splits "<slug>_<digits>" into its parts. The slug
// may itself contain underscores; the identifier is everything after
// the last one.
func splitEntityName(name string) (string, int64, bool) {
	i := strings.LastIndex(name, "_")
	if i <= 0 || i == len(name)-1 {
		return "", 0, false
	}
	digits := name[i+1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", 0, false
		}
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return name[:i], id, true
}
