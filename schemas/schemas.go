// Package schemas holds the embedded JSON Schemas shipped with the tool.
package schemas

import _ "embed"

// ManifestSchemaJSON is the JSON Schema for run.json manifests.
//
//go:embed manifest.schema.json
var ManifestSchemaJSON string
