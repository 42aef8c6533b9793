package app_test

import (
	"os"
	"strings"
	"testing"

	"assetline/internal/app"
	"assetline/internal/config"
)

func TestResolveConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := app.ResolveConfig(t.TempDir(), "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Firm.ID != "assetline" {
		t.Fatalf("firm = %q, want assetline", cfg.Firm.ID)
	}
	if _, ok := cfg.RBAC.Roles["manager"]; !ok {
		t.Fatalf("default config missing manager role")
	}
}

func TestResolveConfigReadsWorkspaceFile(t *testing.T) {
	ws := t.TempDir()
	yaml := "firm:\n  id: coastal\n  name: Coastal Asset Group\n"
	if err := os.WriteFile(config.Path(ws), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := app.ResolveConfig(ws, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Firm.Name != "Coastal Asset Group" {
		t.Fatalf("firm name = %q", cfg.Firm.Name)
	}

	cfg, err = app.ResolveConfig(ws, "harborview")
	if err != nil {
		t.Fatalf("resolve with override: %v", err)
	}
	if cfg.Firm.ID != "harborview" {
		t.Fatalf("firm override = %q, want harborview", cfg.Firm.ID)
	}
}

func TestResolveHub(t *testing.T) {
	if hub, err := app.ResolveHub(42, ""); err != nil || hub != 42 {
		t.Fatalf("explicit hub = %d, %v", hub, err)
	}
	if hub, err := app.ResolveHub(42, "7"); err != nil || hub != 42 {
		t.Fatalf("explicit hub should win over fallback: %d, %v", hub, err)
	}
	if hub, err := app.ResolveHub(0, "7"); err != nil || hub != 7 {
		t.Fatalf("fallback hub = %d, %v", hub, err)
	}
	if _, err := app.ResolveHub(0, ""); err == nil || !strings.Contains(err.Error(), "--hub") {
		t.Fatalf("missing hub error = %v", err)
	}
	if _, err := app.ResolveHub(0, "not-a-number"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := app.ResolveHub(0, "-3"); err == nil {
		t.Fatalf("expected rejection of non-positive hub")
	}
}
