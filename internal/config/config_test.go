package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	if c.DevTools.URL != "http://127.0.0.1:9222" {
		t.Fatalf("devtools url: %s", c.DevTools.URL)
	}
	if c.Scan.TimeoutSec != 90 || !c.Scan.Headless {
		t.Fatalf("scan defaults: %+v", c.Scan)
	}
	if c.Store.Capacity != 200 || c.Store.TTLMin != 60 {
		t.Fatalf("store defaults: %+v", c.Store)
	}
	if c.Archive.Enabled {
		t.Fatalf("archive must default off")
	}
	if c.Log.Level != "info" {
		t.Fatalf("log defaults: %+v", c.Log)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Scan.TimeoutSec != 90 {
		t.Fatalf("defaults not applied: %+v", c.Scan)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consentscan.yaml")
	yaml := "devtools:\n  url: http://10.0.0.5:9222\nscan:\n  timeoutSec: 30\n  fastMode: true\nstore:\n  capacity: 50\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DevTools.URL != "http://10.0.0.5:9222" || c.Scan.TimeoutSec != 30 || !c.Scan.FastMode {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if c.Store.Capacity != 50 || c.Store.TTLMin != 60 {
		t.Fatalf("partial override wrong: %+v", c.Store)
	}
}
