// Package quality runs expectation suites against Parquet data with DuckDB.
package quality

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cyderes/lakehouse-pipeline/internal/apperr"
)

// Expectation types.
const (
	ExpectRowCountBetween = "expect_table_row_count_to_be_between"
	ExpectColumnExists    = "expect_column_to_exist"
	ExpectNotNull         = "expect_column_values_to_not_be_null"
	ExpectUnique          = "expect_column_values_to_be_unique"
	ExpectBetween         = "expect_column_values_to_be_between"
	ExpectInSet           = "expect_column_values_to_be_in_set"
)

// Expectation is one check of a suite
type Expectation struct {
	Type   string   `yaml:"expectation_type"`
	Column string   `yaml:"column,omitempty"`
	Min    *float64 `yaml:"min_value,omitempty"`
	Max    *float64 `yaml:"max_value,omitempty"`
	Values []string `yaml:"value_set,omitempty"`
}

// Suite is a named set of expectations over one asset. Asset is a Parquet
// glob relative to Bucket, or an absolute s3:// URL or local path.
type Suite struct {
	Name         string        `yaml:"name"`
	Bucket       string        `yaml:"bucket,omitempty"`
	Asset        string        `yaml:"asset"`
	Expectations []Expectation `yaml:"expectations"`
}

type suiteFile struct {
	Suites []Suite `yaml:"suites"`
}

// LoadSuites reads and validates a suite file.
func LoadSuites(path string) ([]Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading suite file %s", path)
	}
	return ParseSuites(data)
}

// ParseSuites decodes and validates YAML suites.
func ParseSuites(data []byte) ([]Suite, error) {
	var f suiteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decoding suites")
	}
	if len(f.Suites) == 0 {
		return nil, apperr.Valuef("no suites defined")
	}
	for _, s := range f.Suites {
		if err := s.validate(); err != nil {
			return nil, err
		}
	}
	return f.Suites, nil
}

func (s Suite) validate() error {
	if s.Name == "" {
		return apperr.Valuef("suite without name")
	}
	if s.Asset == "" {
		return apperr.Valuef("suite %s: asset is required", s.Name)
	}
	for i, e := range s.Expectations {
		switch e.Type {
		case ExpectRowCountBetween:
			if e.Min == nil && e.Max == nil {
				return apperr.Valuef("suite %s: expectation %d: min_value or max_value is required", s.Name, i)
			}
			continue
		case ExpectColumnExists, ExpectNotNull, ExpectUnique:
		case ExpectBetween:
			if e.Min == nil && e.Max == nil {
				return apperr.Valuef("suite %s: expectation %d: min_value or max_value is required", s.Name, i)
			}
		case ExpectInSet:
			if len(e.Values) == 0 {
				return apperr.Valuef("suite %s: expectation %d: value_set is required", s.Name, i)
			}
		default:
			return apperr.Valuef("suite %s: unknown expectation type: %s", s.Name, e.Type)
		}
		if e.Column == "" {
			return apperr.Valuef("suite %s: expectation %d: column is required", s.Name, i)
		}
	}
	return nil
}
