package publisher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// requestSchema is the contract a trigger file body must satisfy before
// anything touches the geospatial server.
const requestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["workspace", "store_name", "data_path"],
  "properties": {
    "workspace": {"type": "string", "minLength": 1},
    "store_name": {"type": "string", "minLength": 1},
    "data_path": {"type": "string", "minLength": 1},
    "analysis": {"type": "string"},
    "coverage_name": {"type": "string"},
    "style_name": {"type": "string"},
    "sld_path": {"type": "string"},
    "override_style": {"type": "boolean"},
    "write_on_catalogue": {"type": "boolean"}
  }
}`

// RequestParser turns trigger file bytes into validated descriptors.
type RequestParser struct {
	targetDir string
	schema    *jsonschema.Schema
}

// NewRequestParser builds a parser that resolves data paths under targetDir,
// the local mirror of the bucket.
func NewRequestParser(targetDir string) *RequestParser {
	return &RequestParser{
		targetDir: targetDir,
		schema:    jsonschema.MustCompileString("publish_request.json", requestSchema),
	}
}

// Parse validates raw trigger bytes and yields an immutable descriptor.
// The local data existence check happens here, before any server mutation.
func (p *RequestParser) Parse(triggerKey string, raw []byte) (*RequestDescriptor, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if err := p.schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	var desc RequestDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	desc.TriggerKey = triggerKey

	kind, ok := kindForPath(desc.DataPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, desc.DataPath)
	}
	desc.Kind = kind

	local := filepath.Join(p.targetDir, filepath.FromSlash(desc.DataPath))
	if _, err := os.Stat(local); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDataNotFound, local)
	}

	return &desc, nil
}

// LocalPath resolves a bucket-relative path against the local mirror root.
func (p *RequestParser) LocalPath(rel string) string {
	return filepath.Join(p.targetDir, filepath.FromSlash(rel))
}

func kindForPath(dataPath string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(dataPath)) {
	case ".shp":
		return KindVector, true
	case ".tif", ".tiff":
		return KindRaster, true
	default:
		return "", false
	}
}
