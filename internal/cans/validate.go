package cans

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaResourceID = "inmemory://cans.json"

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// FieldError is one schema violation, located by JSON pointer.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationError carries every violation found in a document.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.String())
	}
	return "cans: validation failed: " + strings.Join(parts, "; ")
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true
		if err := compiler.AddResource(schemaResourceID, bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(schemaResourceID)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// Validate checks p against the document schema. On failure the returned
// error is a *ValidationError listing every violation.
func Validate(p *Parsed) (*Document, error) {
	if p == nil {
		return nil, &ValidationError{Errors: []FieldError{{Path: "/", Message: "document is empty"}}}
	}
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(p.Fields); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("validate document: %w", err)
		}
		return nil, &ValidationError{Errors: collectFieldErrors(ve)}
	}

	var doc Document
	if err := yaml.Unmarshal(p.Block, &doc); err != nil {
		return nil, &ValidationError{Errors: []FieldError{{Path: "/", Message: err.Error()}}}
	}
	return &doc, nil
}

// Load parses and validates raw in one step.
func Load(raw []byte) (*Document, *Parsed, error) {
	parsed, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	doc, err := Validate(parsed)
	if err != nil {
		return nil, parsed, err
	}
	return doc, parsed, nil
}

func collectFieldErrors(root *jsonschema.ValidationError) []FieldError {
	var out []FieldError
	seen := make(map[string]struct{})
	add := func(path, msg string) {
		if path == "" {
			path = "/"
		}
		key := path + "\x00" + msg
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, FieldError{Path: path, Message: msg})
	}

	var walk func(ve *jsonschema.ValidationError)
	walk = func(ve *jsonschema.ValidationError) {
		if len(ve.Causes) > 0 {
			for _, c := range ve.Causes {
				walk(c)
			}
			return
		}
		if strings.HasSuffix(ve.KeywordLocation, "/required") {
			for _, name := range missingProperties(ve.Message) {
				add(joinPointer(ve.InstanceLocation, name), "is required")
			}
			return
		}
		add(ve.InstanceLocation, ve.Message)
	}
	walk(root)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// missingProperties extracts names from "missing properties: 'a', 'b'".
func missingProperties(msg string) []string {
	_, list, ok := strings.Cut(msg, ":")
	if !ok {
		return nil
	}
	var names []string
	for _, part := range strings.Split(list, ",") {
		name := strings.Trim(strings.TrimSpace(part), "'")
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func joinPointer(base, name string) string {
	name = strings.ReplaceAll(name, "~", "~0")
	name = strings.ReplaceAll(name, "/", "~1")
	if base == "" || base == "/" {
		return "/" + name
	}
	return base + "/" + name
}
