package cans

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Render writes doc and body back into the delimited document format.
// Optional sections absent from doc stay absent in the output.
func Render(doc *Document, body string) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("cans: render: document is nil")
	}

	var block bytes.Buffer
	enc := yaml.NewEncoder(&block)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("cans: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("cans: encode frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(bytes.TrimRight(block.Bytes(), "\n"))
	buf.WriteString("\n" + delimiter + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}
