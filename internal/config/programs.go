package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/retrofit/pkg/api"
)

//go:embed programs.yaml
var defaultCatalog []byte

// Catalog is the on-disk shape of a program catalog file.
type Catalog struct {
	Programs []api.Program `yaml:"programs"`
}

// DefaultPrograms returns the built-in catalog.
func DefaultPrograms() []api.Program {
	progs, err := ParsePrograms(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("config: embedded program catalog: %v", err))
	}
	return progs
}

// LoadPrograms reads a program catalog from path. An empty path returns
// DefaultPrograms.
func LoadPrograms(path string) ([]api.Program, error) {
	if path == "" {
		return DefaultPrograms(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading program catalog: %w", err)
	}
	progs, err := ParsePrograms(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return progs, nil
}

// ParsePrograms decodes a catalog. Unknown keys are rejected so a typo in
// a step name does not silently disable the step.
func ParsePrograms(data []byte) ([]api.Program, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cat Catalog
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("decode program catalog: %w", err)
	}

	seen := make(map[string]bool, len(cat.Programs))
	for i, p := range cat.Programs {
		if p.ID == "" {
			return nil, fmt.Errorf("program %d: %w", i, errMissingID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("program %s: %w", p.ID, api.ErrProgramExists)
		}
		seen[p.ID] = true
	}
	return cat.Programs, nil
}

var errMissingID = errors.New("id is required")
