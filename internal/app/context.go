package app

import (
	"fmt"
	"strconv"

	"assetline/internal/config"
)

// ResolveConfig loads assetline.yml from the workspace, falling back to the
// built-in defaults when no file exists. A non-empty firm override wins over
// the configured firm id.
func ResolveConfig(workspace, firmOverride string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		firm := firmOverride
		if firm == "" {
			firm = "assetline"
		}
		return config.Default(firm), nil
	}
	if firmOverride != "" {
		cfg.Firm.ID = firmOverride
	}
	return cfg, nil
}

// ResolveHub picks the asset hub a command acts on. An explicit flag wins,
// then the ASSETLINE_DEFAULT_HUB value written by `al asset use`.
func ResolveHub(explicit int64, fallback string) (int64, error) {
	if explicit != 0 {
		return explicit, nil
	}
	if fallback == "" {
		return 0, fmt.Errorf("asset hub not specified; pass --hub or run al asset use")
	}
	hub, err := strconv.ParseInt(fallback, 10, 64)
	if err != nil || hub <= 0 {
		return 0, fmt.Errorf("invalid ASSETLINE_DEFAULT_HUB %q", fallback)
	}
	return hub, nil
}
