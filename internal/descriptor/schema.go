package descriptor

import (
	_ "embed"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSrc string

var (
	schemaOnce sync.Once
	schemaVal  cue.Value
	schemaErr  error
)

func schema() (cue.Value, error) {
	schemaOnce.Do(func() {
		v := cuecontext.New().CompileString(schemaSrc, cue.Filename("schema.cue"))
		schemaVal, schemaErr = v, v.Err()
	})
	return schemaVal, schemaErr
}

// CheckSchema validates raw descriptor YAML against the embedded CUE schema.
func CheckSchema(data []byte) error {
	s, err := schema()
	if err != nil {
		return &ConfigError{Field: "schema", Message: cueerrors.Details(err, nil)}
	}
	if err := cueyaml.Validate(data, s); err != nil {
		return &ConfigError{Message: "schema: " + cueerrors.Details(err, nil)}
	}
	return nil
}
