package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petriage/petriage/core/model"
)

// Roster is a seedable list of vets loaded at startup.
type Roster struct {
	Vets []model.Vet `json:"vets" yaml:"vets"`
}

// LoadRoster loads a vet roster from a JSON or YAML file.
func LoadRoster(path string) (Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return Roster{}, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeRoster(f, ext)
}

// DecodeRoster reads from r to decode a Roster.
func DecodeRoster(r io.Reader, format string) (Roster, error) {
	var roster Roster
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		if err := dec.Decode(&roster); err != nil {
			return roster, err
		}
	case "json":
		dec := json.NewDecoder(r)
		if err := dec.Decode(&roster); err != nil {
			return roster, err
		}
	default:
		return roster, fmt.Errorf("unsupported format: %s", format)
	}
	for i := range roster.Vets {
		if roster.Vets[i].Status == "" {
			roster.Vets[i].Status = model.VetAvailable
			roster.Vets[i].Available = true
		}
		if err := roster.Vets[i].Validate(); err != nil {
			return roster, err
		}
	}
	return roster, nil
}
