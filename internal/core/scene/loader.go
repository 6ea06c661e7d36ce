package scene

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/zeusphere/internal/core/faults"
)

//go:embed scene.schema.json
var schemaText string

const schemaURL = "scene.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaText)); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

// Format is the encoding of a scene document.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatOf picks the format from a file extension; anything but .json is YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// LoadFile reads, validates and compiles the scene at path.
func LoadFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	return Parse(data, FormatOf(path), path)
}

// LoadJSON loads a scene from a JSON reader.
func LoadJSON(r io.Reader) (*Scene, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data, FormatJSON, "")
}

// LoadYAML loads a scene from a YAML reader.
func LoadYAML(r io.Reader) (*Scene, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data, FormatYAML, "")
}

// Parse validates data against the scene schema, decodes it and compiles it.
// Any failure is a *faults.ValidationError.
func Parse(data []byte, format Format, source string) (*Scene, error) {
	instance, err := decodeInstance(data, format)
	if err != nil {
		return nil, &faults.ValidationError{Source: source, Cause: err}
	}
	if err := ValidateInstance(instance); err != nil {
		verr := &faults.ValidationError{Source: source, Cause: err}
		var serr *jsonschema.ValidationError
		if errors.As(err, &serr) {
			for _, leaf := range leaves(serr) {
				loc := leaf.InstanceLocation
				if loc == "" {
					loc = "/"
				}
				verr.Add("%s: %s", loc, leaf.Message)
			}
		}
		return nil, verr
	}

	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, &faults.ValidationError{Source: source, Cause: err}
	}
	return Compile(doc, source)
}

// ValidateInstance checks a decoded JSON value against the scene schema.
func ValidateInstance(instance any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile scene schema: %w", err)
	}
	return schema.Validate(instance)
}

// decodeInstance produces the generic JSON value the schema validator
// expects. YAML goes through a JSON round trip so numbers and maps have
// JSON types.
func decodeInstance(data []byte, format Format) (any, error) {
	var raw any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return raw, nil
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func decodeDocument(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}
	return &doc, nil
}

func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}
