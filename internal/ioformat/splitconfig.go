// Package ioformat reads the declarative split configuration and the
// per-level proxy CSV files that drive a disaggregation run.
package ioformat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/pik-piam/mrio-disagg/pkg/errors"
)

// ProxyRef names one proxy file to load for a split, at a given refinement level and year.
type ProxyRef struct {
	Level int    `yaml:"level"`
	File  string `yaml:"file"`
	Year  int    `yaml:"year"`
}

// SplitSpec is one declarative split: a sector or region being broken into
// named subs, together with the proxy files that inform its disaggregation.
type SplitSpec struct {
	Kind    string     `yaml:"kind"` // "sector" or "region"
	ID      string     `yaml:"id"`
	Into    []string   `yaml:"into"`
	Proxies []ProxyRef `yaml:"proxies"`
}

// LoadSplitConfig reads an ordered sequence of SplitSpec entries from a YAML
// file. Splits are applied in file order; proxies across all splits are
// loaded only after every split has been applied (see engine.Initialize).
func LoadSplitConfig(path string) ([]SplitSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("reading split config %q", path), err)
	}

	var specs []SplitSpec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, fmt.Sprintf("parsing split config %q", path), err)
	}

	for _, s := range specs {
		if s.Kind != "sector" && s.Kind != "region" {
			return nil, apperrors.New(apperrors.CodeConfigError, fmt.Sprintf("split config %q: unknown kind %q", path, s.Kind))
		}
		if s.ID == "" {
			return nil, apperrors.New(apperrors.CodeConfigError, fmt.Sprintf("split config %q: entry missing id", path))
		}
		if len(s.Into) == 0 {
			return nil, apperrors.New(apperrors.CodeConfigError, fmt.Sprintf("split config %q: entry %q has no 'into' targets", path, s.ID))
		}
	}
	return specs, nil
}
