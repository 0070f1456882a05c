package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// isolateConfig points the config loader at empty directories and sets
// the required remote settings, so a developer's real environment or
// config files cannot leak into a test run.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PAGEMIRROR_REMOTE_URL", "http://127.0.0.1:9")
	t.Setenv("PAGEMIRROR_REMOTE_TOKEN", "test-token")
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func mustWrite(t *testing.T, file, content string) {
	t.Helper()
	mustMkdir(t, filepath.Dir(file))
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "pagemirror dev") {
		t.Fatalf("version output = %q, want it to mention pagemirror dev", out)
	}
}

func TestScanCommandReportsTree(t *testing.T) {
	isolateConfig(t)
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "pages", "home_10", "home_10.html"), "<h1>Home</h1>")
	mustMkdir(t, filepath.Join(root, "_trash", "pages", "old_9"))
	mustMkdir(t, filepath.Join(root, "pages", "draft"))
	mustWrite(t, filepath.Join(root, "_data", "10.json"),
		`{"slug":"home","title":"Home","status":"published","file":"pages/home_10/home_10.html"}`)

	out, err := runCommand(t, "scan", "--root", root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, want := range []string{"entities: 1", "trashed: 1", "bare folders: 1", "metadata documents: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("scan output missing %q:\n%s", want, out)
		}
	}
}

func TestScanCommandPromotesBareFolder(t *testing.T) {
	isolateConfig(t)

	var creates int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v1/collections/") {
			atomic.AddInt32(&creates, 1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"identifier":77,"slug":"getting-started"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	t.Setenv("PAGEMIRROR_REMOTE_URL", srv.URL)

	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "pages", "getting-started", "getting-started.html"), "<h1>Start</h1>")

	out, err := runCommand(t, "scan", "--root", root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "bare folders: 1") {
		t.Fatalf("scan output missing bare folder count:\n%s", out)
	}

	// The one-shot pass finishes the promotion before it exits.
	if got := atomic.LoadInt32(&creates); got != 1 {
		t.Fatalf("remote create calls = %d, want 1", got)
	}
	promoted := filepath.Join(root, "pages", "getting-started_77", "getting-started_77.html")
	if _, err := os.Stat(promoted); err != nil {
		t.Fatalf("promoted tree: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "pages", "getting-started")); !os.IsNotExist(err) {
		t.Fatalf("bare folder still present after promotion (err=%v)", err)
	}
}

func TestScanCommandMissingRoot(t *testing.T) {
	isolateConfig(t)
	_, err := runCommand(t, "scan", "--root", filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected an error for a missing root directory")
	}
	if !strings.Contains(err.Error(), "workspace root") {
		t.Fatalf("error = %v, want workspace root failure", err)
	}
}

func TestWatchCommandRejectsMemoryRoot(t *testing.T) {
	isolateConfig(t)
	_, err := runCommand(t, "watch", "--root", "memory://")
	if err == nil {
		t.Fatal("expected watch to reject a memory root")
	}
	if !strings.Contains(err.Error(), "memory workspace") {
		t.Fatalf("error = %v, want memory workspace rejection", err)
	}
}

func TestCommandsRequireRemoteConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PAGEMIRROR_REMOTE_URL", "")
	t.Setenv("PAGEMIRROR_REMOTE_TOKEN", "")

	_, err := runCommand(t, "scan", "--root", t.TempDir())
	if err == nil {
		t.Fatal("expected an error with no remote configuration")
	}
	if !strings.Contains(err.Error(), "PAGEMIRROR_REMOTE_URL") {
		t.Fatalf("error = %v, want it to name PAGEMIRROR_REMOTE_URL", err)
	}
}
