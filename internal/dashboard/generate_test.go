package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	if _, err := Render(t.TempDir(), DefaultParams("")); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")

	dir := t.TempDir()
	written, err := Render(dir, DefaultParams("fleet"))
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("expected one dashboard, got %v", written)
	}

	b, err := os.ReadFile(filepath.Join(dir, "swarm-dashboard.json"))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !strings.Contains(string(b), "uid1") {
		t.Fatalf("greptime uid not rendered")
	}
	for _, table := range []string{"swarm_events", "command_log", "droneswarm-fleet"} {
		if !strings.Contains(string(b), table) {
			t.Fatalf("dashboard does not reference %s", table)
		}
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("rendered dashboard is not valid JSON: %v", err)
	}
}
