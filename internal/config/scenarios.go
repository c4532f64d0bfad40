package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// LoadScenarios reads scenario parameter sets from the JSON file at path.
// An empty path yields the built-in default scenario. Every loaded scenario
// is validated; one bad scenario rejects the whole file so a partial deploy
// never runs half a configuration.
func LoadScenarios(path string) ([]domain.ScenarioParameters, error) {
	if path == "" {
		return []domain.ScenarioParameters{domain.DefaultScenario()}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios file: %w", err)
	}

	var scenarios []domain.ScenarioParameters
	if err := json.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("parse scenarios file %s: %w", path, err)
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("scenarios file %s holds no scenarios", path)
	}

	seen := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate scenario name %q", s.Name)
		}
		seen[s.Name] = true
	}

	return scenarios, nil
}
