package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/tailscale/hujson"
)

// ErrUnknownDefinition is returned when a record's table/version pair is not
// described by the schema.
var ErrUnknownDefinition = errors.New("unknown table definition")

// Schema maps table type names to their known definitions.
//
// On disk it is a JSONC document:
//
//	{
//	  "tables": {
//	    "land_units_tables": [
//	      {"version": 3, "columns": [{"name": "key", "type": "string", "key": true}]}
//	    ]
//	  }
//	}
type Schema struct {
	Tables map[string][]Definition `json:"tables"`
}

// LoadSchema reads a JSONC schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // schema path comes from config
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	return ParseSchema(data)
}

// ParseSchema decodes a JSONC schema document.
func ParseSchema(data []byte) (*Schema, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC schema: %w", err)
	}

	var schema Schema

	err = json.Unmarshal(standardized, &schema)
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	if schema.Tables == nil {
		schema.Tables = map[string][]Definition{}
	}

	return &schema, nil
}

// Definition returns the definition for a table name and version.
func (s *Schema) Definition(name string, version int) (Definition, error) {
	for _, def := range s.Tables[name] {
		if def.Version == version {
			return def, nil
		}
	}

	return Definition{}, fmt.Errorf("%w: %s v%d", ErrUnknownDefinition, name, version)
}

// Latest returns the highest-versioned definition for a table name.
func (s *Schema) Latest(name string) (Definition, error) {
	defs := s.Tables[name]
	if len(defs) == 0 {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownDefinition, name)
	}

	return slices.MaxFunc(defs, func(a, b Definition) int { return a.Version - b.Version }), nil
}
