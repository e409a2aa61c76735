package orbit

import (
	"fmt"
	"log/slog"
)

// BootstrapReport lists what Bootstrap did.
type BootstrapReport struct {
	Discovered []string `json:"discovered,omitempty"`
	Scaffolded []string `json:"scaffolded,omitempty"`
	Templates  int      `json:"templates"`
}

// Bootstrap registers category folders already present in the vault,
// scaffolds every category, and loads template overrides.
func (e *Engine) Bootstrap() (BootstrapReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report BootstrapReport
	added, err := e.registry.Discover()
	if err != nil {
		return report, err
	}
	for _, c := range added {
		report.Discovered = append(report.Discovered, c.Folder())
	}

	for _, c := range e.registry.Categories() {
		created, err := e.registry.EnsureScaffold(c)
		if err != nil {
			return report, err
		}
		if created {
			report.Scaffolded = append(report.Scaffolded, c.Folder())
			e.emit(Event{Type: EventScaffolded, Path: c.Folder()})
		}
	}

	if e.templatesDir != "" {
		n, err := e.renderer.LoadDir(e.store, e.templatesDir)
		report.Templates = n
		if err != nil {
			return report, fmt.Errorf("orbit: load templates: %w", err)
		}
	}

	e.logger.Info("orbit: bootstrap complete",
		slog.Int("categories", len(e.registry.Categories())),
		slog.Int("scaffolded", len(report.Scaffolded)),
		slog.Int("templates", report.Templates),
	)
	return report, nil
}
