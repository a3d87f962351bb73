package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func writeMinimalConfig(t *testing.T, path string, namespacePort int) {
	t.Helper()
	doc := "global:\n  namespace_server_port: " + strconv.Itoa(namespacePort) + "\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestConfiguration_WatchReloadsOnExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labrig.cfg")
	writeMinimalConfig(t, path, 18861)

	c := New()
	if err := c.Load(path); err != nil {
		t.Fatalf("initial load: %v", err)
	}
	sub := c.Subscribe(4)
	defer sub.Unsubscribe()

	if err := c.Watch(); err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer c.StopWatch()

	writeMinimalConfig(t, path, 19000)

	select {
	case changed := <-sub.C:
		if changed.Tree.Global.NamespaceServerPort != 19000 {
			t.Fatalf("expected reloaded port 19000, got %d", changed.Tree.Global.NamespaceServerPort)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch to pick up the external edit")
	}
}

func TestConfiguration_WatchWithoutFileFails(t *testing.T) {
	c := New()
	if err := c.Watch(); err == nil {
		t.Fatal("expected an error watching a Configuration with no associated file")
	}
}
