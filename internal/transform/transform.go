// Copyright (c) 2026 Neomantra Corp

// Package transform loads the optional YAML post-load SQL rewrite and
// builds the SELECT query it describes against the staging table "raw".
package transform

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/neomantra/xlparq"
)

///////////////////////////////////////////////////////////////////////////////

// ComputedColumn is one COMPUTED entry: "expr AS name".
type ComputedColumn struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Transform is the optional post-load rewrite applied before Parquet
// emission. All fields are optional; a zero-value Transform is "SELECT *
// FROM raw".
type Transform struct {
	Select   []string          `yaml:"select"`
	Rename   map[string]string `yaml:"rename"`
	Computed []ComputedColumn  `yaml:"computed"`
	Filters  []string          `yaml:"filters"`
	Distinct bool              `yaml:"distinct"`
}

// config is the on-disk YAML document shape: the transform nests under a
// top-level "transform" key, mirroring the original tool's config file.
type config struct {
	Transform *Transform `yaml:"transform"`
}

// Load reads and parses a transform config file. A missing file returns
// (nil, nil) — no transform configured is not an error. A present but
// unparseable file returns an error; callers should treat that as "no
// transform configured" and proceed rather than aborting the run.
func Load(path string) (*Transform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transform config %s: %w", path, err)
	}

	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse transform config %s: %w", path, err)
	}
	return cfg.Transform, nil
}

///////////////////////////////////////////////////////////////////////////////

// BuildQuery builds the SELECT query against "raw". A nil Transform yields
// "SELECT * FROM raw".
func BuildQuery(t *Transform) string {
	if t == nil {
		t = &Transform{}
	}

	var cols []string
	if len(t.Select) > 0 {
		for _, c := range t.Select {
			if alias, ok := t.Rename[c]; ok {
				cols = append(cols, fmt.Sprintf("%s AS %s", xlparq.QuoteIdent(c), xlparq.QuoteIdent(alias)))
			} else {
				cols = append(cols, xlparq.QuoteIdent(c))
			}
		}
	} else {
		cols = append(cols, "*")
	}

	for _, c := range t.Computed {
		cols = append(cols, fmt.Sprintf("%s AS %s", c.Expr, xlparq.QuoteIdent(c.Name)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if t.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM raw")

	if len(t.Filters) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(t.Filters, " AND "))
	}

	return b.String()
}
