package engine

import (
	"context"
	"testing"
	"time"

	"github.com/agentworkforce/pagemirror/internal/metadoc"
)

func TestScanCountsAndPrimes(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.mkEntity(t, "pages/home_10", "home_10.html", "<p>home</p>")
	rig.mkEntity(t, "_trash/pages/old_9", "old_9.html", "<p>old</p>")
	rig.mkEntity(t, "pages/draft", "draft.html", "<p>draft</p>")
	if err := rig.docs.Save(ctx, 10, metadoc.Document{
		Slug: "home", Title: "Home", Status: "published",
		File: "pages/home_10/home_10.html",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := rig.ws.WriteFile(ctx, "_data/11.json", []byte("{broken")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	report, err := rig.engine.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Entities != 1 || report.Trashed != 1 || report.Bare != 1 || report.Docs != 1 {
		t.Fatalf("report = %+v", report)
	}

	snap, ok := rig.engine.Snapshot(10)
	if !ok || snap.Slug != "home" || snap.Status != "published" {
		t.Fatalf("primed snapshot = %+v (ok=%v)", snap, ok)
	}
	if _, ok := rig.engine.Snapshot(11); ok {
		t.Fatal("broken document must not prime a snapshot")
	}

	// The leftover bare folder goes through promotion.
	waitFor(t, func() bool { return len(rig.remote.creates()) == 1 }, "promotion from scan")
	if got := rig.remote.creates()[0]; got.collection != "pages" || got.slug != "draft" {
		t.Fatalf("create call = %+v", got)
	}
}

func TestFlushRunsScheduledPromotionsImmediately(t *testing.T) {
	rig := newTestRig(t, func(o *Options) {
		// Too long to fire on its own; only Flush can run it.
		o.Windows.PromotionSettle = time.Hour
	})
	ctx := context.Background()
	rig.mkEntity(t, "pages/draft", "draft.html", "<p>draft</p>")

	report, err := rig.engine.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Bare != 1 {
		t.Fatalf("report = %+v, want one bare folder", report)
	}
	if n := len(rig.remote.creates()); n != 0 {
		t.Fatalf("creates before flush = %d, want 0", n)
	}

	rig.engine.Flush()

	creates := rig.remote.creates()
	if len(creates) != 1 || creates[0].slug != "draft" {
		t.Fatalf("creates after flush = %+v, want one for draft", creates)
	}
	renamed, err := rig.ws.DirExists(ctx, "pages/draft_1")
	if err != nil || !renamed {
		t.Fatalf("promoted folder missing (exists=%v err=%v)", renamed, err)
	}
}

func TestScanDoesNotFireFolderActions(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.mkEntity(t, "_trash/pages/old_9", "old_9.html", "<p>old</p>")
	if _, err := rig.engine.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// Existing trashed entities are already reconciled remotely; the
	// scan only counts them.
	if n := len(rig.remote.folderActions()); n != 0 {
		t.Fatalf("folder actions from scan = %d, want 0", n)
	}
}

func TestScanEmptyWorkspace(t *testing.T) {
	rig := newTestRig(t)

	report, err := rig.engine.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report != (ScanReport{}) {
		t.Fatalf("report = %+v, want zero", report)
	}
}
