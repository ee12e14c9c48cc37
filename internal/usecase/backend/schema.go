package backend

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed appdata.schema.json
var appDataSchemaJSON []byte

var appDataSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile(appDataSchemaJSON)
})

// checkAppDataShape validates a decoded export document before it is merged.
func checkAppDataShape(doc any) error {
	schema, err := appDataSchema()
	if err != nil {
		return fmt.Errorf("invalid export schema: %w", err)
	}
	result := schema.Validate(doc)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}
