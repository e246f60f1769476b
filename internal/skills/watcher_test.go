package skills

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeManifest(t *testing.T, dir, id string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := map[string]any{
		"id":          id,
		"name":        id,
		"version":     "1.0.0",
		"description": "test skill",
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestWatcher_PicksUpNewSkill(t *testing.T) {
	root := t.TempDir()

	mgr := NewManager(ManagerConfig{})
	mgr.SetDiscoveryPaths([]string{root})
	if err := mgr.ScanAllPaths(); err != nil {
		t.Fatalf("initial scan: %v", err)
	}
	if _, ok := mgr.GetSkill("watched-skill"); ok {
		t.Fatal("expected skill to not exist before it is written")
	}

	w, err := NewWatcher(mgr)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Start()
	defer w.Stop()

	writeManifest(t, filepath.Join(root, "watched-skill"), "watched-skill")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := mgr.GetSkill("watched-skill"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher did not pick up new skill within timeout")
}

func TestWatcher_StopIsIdempotentSafe(t *testing.T) {
	root := t.TempDir()
	mgr := NewManager(ManagerConfig{})
	mgr.SetDiscoveryPaths([]string{root})

	w, err := NewWatcher(mgr)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Start()
	w.Stop()
}
