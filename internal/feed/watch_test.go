package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWatcher_FiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte("sources: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 8)

	cw, err := NewConfigWatcher(func(p string) { changed <- p }, path)
	if err != nil {
		t.Fatal(err)
	}

	defer cw.Close()

	if err := os.WriteFile(path, []byte("sources:\n  - name: a\n    url: mem://a\n    enabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changed:
		if p != path {
			t.Fatalf("changed path %q, want %q", p, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification within timeout")
	}
}
