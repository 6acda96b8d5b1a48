package usecase

import (
	"fmt"
	"io"
	"os"

	"github.com/iwvelando/bess-engine/pkg/provenance"
	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	UseCases []UseCaseProfile `yaml:"useCases"`
}

// LoadFile reads a YAML catalog of the form `useCases: [...]`.
func LoadFile(path string) (*MapCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open use case catalog %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadReader(f)
}

// LoadReader decodes a YAML catalog from r.
func LoadReader(r io.Reader) (*MapCatalog, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode use case catalog: %w", err)
	}
	if len(file.UseCases) == 0 {
		return nil, fmt.Errorf("use case catalog contains no useCases")
	}
	return NewMapCatalog(file.UseCases, provenance.Calculated)
}
