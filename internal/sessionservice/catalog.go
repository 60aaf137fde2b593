package sessionservice

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/fixture"
)

// LoadCatalogDir builds a MapCatalog from every *.yaml/*.yml fixture in dir,
// keyed by each fixture's own AssessmentTest identifier. Each fixture gets
// its own expression.Engine, since a fixture's rule expressions are compiled
// handles into the specific engine that parsed it.
func LoadCatalogDir(dir string) (MapCatalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sessionservice: read fixture dir %s: %w", dir, err)
	}

	catalog := make(MapCatalog)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)

		engine := expression.NewExprEngine()

		fx, err := fixture.Load(path, engine)
		if err != nil {
			return nil, fmt.Errorf("sessionservice: load fixture %s: %w", path, err)
		}

		catalog[fx.Model.Identifier] = CatalogEntry{
			Model:  fx.Model,
			Items:  fx.Items,
			Engine: fx.Engine,
		}
	}

	return catalog, nil
}
