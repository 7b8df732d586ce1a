package cans

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

var (
	// ErrMissingOpeningDelimiter means line 1 is not a bare `---`.
	ErrMissingOpeningDelimiter = errors.New("cans: missing opening --- delimiter")
	// ErrMissingClosingDelimiter means no second `---` line closes the block.
	ErrMissingClosingDelimiter = errors.New("cans: missing closing --- delimiter")
	// ErrMalformedBlock means the block between the delimiters is not a YAML mapping.
	ErrMalformedBlock = errors.New("cans: malformed frontmatter block")
)

// Parsed is a split but not yet validated document.
type Parsed struct {
	// Block is the raw structured block between the delimiters.
	Block []byte
	// Fields is the block decoded into JSON-compatible values.
	Fields map[string]any
	// Body is the free text after the closing delimiter.
	Body string
}

// Parse splits raw into its structured block and body and decodes the block.
func Parse(raw []byte) (*Parsed, error) {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	normalized = bytes.TrimPrefix(normalized, []byte("\xef\xbb\xbf"))

	first, rest, found := bytes.Cut(normalized, []byte("\n"))
	if string(bytes.TrimRight(first, " \t")) != delimiter {
		return nil, ErrMissingOpeningDelimiter
	}
	if !found {
		return nil, ErrMissingClosingDelimiter
	}

	block, body, ok := splitAtClosing(rest)
	if !ok {
		return nil, ErrMissingClosingDelimiter
	}

	var decoded any
	if err := yaml.Unmarshal(block, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a mapping at the top level", ErrMalformedBlock)
	}

	// Round-trip through JSON so numbers, timestamps and nested maps take
	// the shapes the schema validator understands.
	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	var normalizedFields map[string]any
	if err := json.Unmarshal(encoded, &normalizedFields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}

	return &Parsed{
		Block:  append([]byte(nil), block...),
		Fields: normalizedFields,
		Body:   string(body),
	}, nil
}

func splitAtClosing(rest []byte) (block, body []byte, ok bool) {
	offset := 0
	for offset <= len(rest) {
		line := rest[offset:]
		next := len(rest)
		if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
			next = offset + idx + 1
		}
		if string(bytes.TrimRight(line, " \t")) == delimiter {
			return rest[:offset], rest[next:], true
		}
		if next >= len(rest) {
			break
		}
		offset = next
	}
	return nil, nil, false
}
