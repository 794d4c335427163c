package dsl

import (
	"io/fs"
	"path/filepath"
	"strings"

	"schemasync/internal/engine"
)

// IsSchemaFile reports whether path has one of the loadable extensions.
func IsSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dsl", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadAll walks root and parses every schema file in lexical path order.
func LoadAll(root string) ([]*Document, error) {
	var docs []*Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !IsSchemaFile(path) {
			return nil
		}
		var (
			doc *Document
			err error
		)
		if strings.EqualFold(filepath.Ext(path), ".dsl") {
			doc, err = ParseFile(path)
		} else {
			doc, err = ParseYAMLFile(path)
		}
		// Parse errors already name the file.
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Definition declares every table of the document.
func (d *Document) Definition() engine.Definition {
	return func(s *engine.SchemaDef) error {
		for _, t := range d.Tables {
			s.Table(t.Name, t.declare)
		}
		return nil
	}
}

func (t *Table) declare(td *engine.TableDef) error {
	for _, f := range t.Fields {
		td.Field(f.Name, f.Type, f.Options)
	}
	for _, ix := range t.Indexes {
		td.Index(ix.Name, ix.Fields, ix.Unique)
	}
	return nil
}

// Definitions returns one definition per document, in order.
func Definitions(docs []*Document) []engine.Definition {
	out := make([]engine.Definition, len(docs))
	for i, d := range docs {
		out[i] = d.Definition()
	}
	return out
}
