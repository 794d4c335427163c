package dsl

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

type yamlDocument struct {
	Tables []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Name    string      `yaml:"name"`
	Fields  []yamlField `yaml:"fields"`
	Indexes []yamlIndex `yaml:"indexes"`
	line    int
}

type yamlField struct {
	Name    string         `yaml:"name"`
	Type    string         `yaml:"type"`
	Primary *bool          `yaml:"primary"`
	Default any            `yaml:"default"`
	Options map[string]any `yaml:"options"`
	line    int
}

type yamlIndex struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
	Unique bool     `yaml:"unique"`
	line   int
}

// The UnmarshalYAML hooks only record source lines for lint output.

func (t *yamlTable) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlTable
	if err := n.Decode((*plain)(t)); err != nil {
		return err
	}
	t.line = n.Line
	return nil
}

func (f *yamlField) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlField
	if err := n.Decode((*plain)(f)); err != nil {
		return err
	}
	f.line = n.Line
	return nil
}

func (ix *yamlIndex) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlIndex
	if err := n.Decode((*plain)(ix)); err != nil {
		return err
	}
	ix.line = n.Line
	return nil
}

// ParseYAML reads the YAML form of a schema file. Unknown top-level keys
// are errors.
func ParseYAML(r io.Reader, path string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.CategoryDefinition, syncerr.CodeInvalidDocument, "read "+path, err)
	}
	var raw yamlDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, syncerr.Wrap(syncerr.CategoryDefinition, syncerr.CodeInvalidDocument, "parse "+path, err).
			WithDetails(map[string]any{"file": path})
	}

	doc := &Document{Path: path}
	for _, yt := range raw.Tables {
		t := &Table{Name: yt.Name, Line: yt.line}
		for _, yf := range yt.Fields {
			opts := schema.Options{}
			for k, v := range yf.Options {
				opts[k] = v
			}
			if yf.Primary != nil {
				opts[schema.OptPrimary] = *yf.Primary
			}
			if yf.Default != nil {
				opts[schema.OptDefault] = yf.Default
			}
			t.Fields = append(t.Fields, Field{Name: yf.Name, Type: yf.Type, Options: opts, Line: yf.line})
		}
		for _, yi := range yt.Indexes {
			t.Indexes = append(t.Indexes, Index{Name: yi.Name, Fields: yi.Fields, Unique: yi.Unique, Line: yi.line})
		}
		doc.Tables = append(doc.Tables, t)
	}
	return doc, nil
}

// ParseYAMLFile opens and parses one .yaml/.yml file.
func ParseYAMLFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseYAML(f, path)
}
