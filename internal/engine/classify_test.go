package engine

import "testing"

func TestClassifyPaths(t *testing.T) {
	c := NewClassifier(Layout{})

	cases := []struct {
		name string
		rel  string
		want Classification
	}{
		{
			name: "entity folder",
			rel:  "pages/about_42",
			want: Classification{
				Rel: "pages/about_42", Name: "about_42", Slug: "about",
				Identifier: 42, HasIdentifier: true, Collection: "pages",
				LooksLikeEntity: true, Kind: KindEntityFolder,
			},
		},
		{
			name: "entity folder with underscored slug",
			rel:  "posts/hello_world_7",
			want: Classification{
				Rel: "posts/hello_world_7", Name: "hello_world_7", Slug: "hello_world",
				Identifier: 7, HasIdentifier: true, Collection: "posts",
				LooksLikeEntity: true, Kind: KindEntityFolder,
			},
		},
		{
			name: "bare folder under collection",
			rel:  "pages/about",
			want: Classification{
				Rel: "pages/about", Name: "about", Slug: "about",
				Collection: "pages", Kind: KindBareFolder,
			},
		},
		{
			name: "nested bare folder is ignored",
			rel:  "pages/about/draft",
			want: Classification{
				Rel: "pages/about/draft", Name: "draft", Collection: "pages",
			},
		},
		{
			name: "collection root is not a bare folder",
			rel:  "pages",
			want: Classification{Rel: "pages", Name: "pages"},
		},
		{
			name: "content file with identifier",
			rel:  "pages/about_42/about_42.html",
			want: Classification{
				Rel: "pages/about_42/about_42.html", Name: "about_42.html", Slug: "about",
				Identifier: 42, HasIdentifier: true, Collection: "pages",
				Kind: KindContentFile,
			},
		},
		{
			name: "content file without identifier",
			rel:  "pages/about/about.html",
			want: Classification{
				Rel: "pages/about/about.html", Name: "about.html", Slug: "about",
				Collection: "pages", Kind: KindContentFile,
			},
		},
		{
			name: "foreign extension",
			rel:  "pages/about_42/notes.txt",
			want: Classification{
				Rel: "pages/about_42/notes.txt", Name: "notes.txt", Collection: "pages",
			},
		},
		{
			name: "trashed entity folder",
			rel:  "_trash/pages/about_42",
			want: Classification{
				Rel: "_trash/pages/about_42", Name: "about_42", Slug: "about",
				Identifier: 42, HasIdentifier: true, Collection: "pages",
				InTrash: true, LooksLikeEntity: true, Kind: KindEntityFolder,
			},
		},
		{
			name: "trash nested inside collection",
			rel:  "pages/_trash/about_42",
			want: Classification{
				Rel: "pages/_trash/about_42", Name: "about_42", Slug: "about",
				Identifier: 42, HasIdentifier: true, Collection: "pages",
				InTrash: true, LooksLikeEntity: true, Kind: KindEntityFolder,
			},
		},
		{
			name: "bare folder inside trash is not promotable",
			rel:  "_trash/pages/about",
			want: Classification{
				Rel: "_trash/pages/about", Name: "about", Collection: "pages",
				InTrash: true,
			},
		},
		{
			name: "trash directory itself",
			rel:  "_trash",
			want: Classification{Rel: "_trash", Name: "_trash"},
		},
		{
			name: "metadata document",
			rel:  "_data/42.json",
			want: Classification{
				Rel: "_data/42.json", Name: "42.json",
				Identifier: 42, HasIdentifier: true, Kind: KindMetadataDoc,
			},
		},
		{
			name: "metadata document with non numeric name",
			rel:  "_data/notes.json",
			want: Classification{Rel: "_data/notes.json", Name: "notes.json"},
		},
		{
			name: "metadata document nested too deep",
			rel:  "_data/sub/42.json",
			want: Classification{Rel: "_data/sub/42.json", Name: "42.json"},
		},
		{
			name: "dot directories are invisible",
			rel:  ".git/objects/ab",
			want: Classification{Rel: ".git/objects/ab"},
		},
		{
			name: "zero identifier is not an entity",
			rel:  "pages/about_0",
			want: Classification{
				Rel: "pages/about_0", Name: "about_0", Slug: "about_0",
				Collection: "pages", Kind: KindBareFolder,
			},
		},
		{
			name: "unknown top level folder",
			rel:  "assets/logo",
			want: Classification{Rel: "assets/logo", Name: "logo"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.rel)
			if got != tc.want {
				t.Fatalf("Classify(%q) = %+v, want %+v", tc.rel, got, tc.want)
			}
		})
	}
}

func TestClassifyNormalizesInput(t *testing.T) {
	c := NewClassifier(Layout{})
	got := c.Classify("/pages//about_42/")
	if got.Kind != KindEntityFolder || got.Rel != "pages/about_42" {
		t.Fatalf("normalized classification = %+v", got)
	}
}

func TestClassifyCustomLayout(t *testing.T) {
	c := NewClassifier(Layout{
		Collections: []string{"docs"},
		TrashDir:    "deleted",
		DataDir:     "meta",
		ContentExt:  "md",
	})

	if got := c.Classify("docs/intro_3/intro_3.md"); got.Kind != KindContentFile || got.Identifier != 3 {
		t.Fatalf("content classification = %+v", got)
	}
	if got := c.Classify("deleted/docs/intro_3"); !got.InTrash {
		t.Fatalf("expected trash detection, got %+v", got)
	}
	if got := c.Classify("meta/3.json"); got.Kind != KindMetadataDoc {
		t.Fatalf("metadata classification = %+v", got)
	}
	if got := c.Classify("pages/about"); got.Kind != KindOther {
		t.Fatalf("unknown collection should be ignored, got %+v", got)
	}
	if ext := c.ContentExt(); ext != ".md" {
		t.Fatalf("ContentExt() = %q", ext)
	}
}

func TestSplitEntityName(t *testing.T) {
	cases := []struct {
		in   string
		slug string
		id   int64
		ok   bool
	}{
		{"about_42", "about", 42, true},
		{"hello_world_7", "hello_world", 7, true},
		{"about", "", 0, false},
		{"about_", "", 0, false},
		{"_42", "", 0, false},
		{"about_4x2", "", 0, false},
		{"about_0", "", 0, false},
	}
	for _, tc := range cases {
		slug, id, ok := splitEntityName(tc.in)
		if slug != tc.slug || id != tc.id || ok != tc.ok {
			t.Errorf("splitEntityName(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tc.in, slug, id, ok, tc.slug, tc.id, tc.ok)
		}
	}
}
