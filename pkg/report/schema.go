package report

import (
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillbench/pkg/snapshot"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// Names accepted by Schema
const (
	SchemaReport   = "report"
	SchemaSnapshot = "snapshot"
)

// Schema returns the JSON schema of the named output document
func Schema(name string) (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}

	switch name {
	case SchemaReport:
		return reflector.Reflect(&bench.Report{}), nil
	case SchemaSnapshot:
		return reflector.Reflect(&snapshot.Snapshot{}), nil
	default:
		return nil, errors.Errorf("unknown schema %q, expected %s or %s", name, SchemaReport, SchemaSnapshot)
	}
}
