package dsl

import "fmt"

// Issue is one problem found by Lint.
type Issue struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Table   string `json:"table"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", i.File, i.Line, i.Table, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.File, i.Table, i.Message)
}

// Lint catches mistakes that would otherwise only surface against a live
// database: tables declared in more than one file, repeated fields or
// indexes, and indexes over undeclared fields.
func Lint(docs []*Document) []Issue {
	var issues []Issue
	seen := map[string]string{}
	for _, d := range docs {
		for _, t := range d.Tables {
			if prev, ok := seen[t.Name]; ok {
				issues = append(issues, Issue{File: d.Path, Line: t.Line, Table: t.Name,
					Message: fmt.Sprintf("table already declared in %s", prev)})
			} else {
				seen[t.Name] = d.Path
			}

			fields := map[string]bool{}
			for _, f := range t.Fields {
				if fields[f.Name] {
					issues = append(issues, Issue{File: d.Path, Line: f.Line, Table: t.Name,
						Message: fmt.Sprintf("field %q declared twice", f.Name)})
				}
				fields[f.Name] = true
			}

			indexes := map[string]bool{}
			for _, ix := range t.Indexes {
				if indexes[ix.Name] {
					issues = append(issues, Issue{File: d.Path, Line: ix.Line, Table: t.Name,
						Message: fmt.Sprintf("index %q declared twice", ix.Name)})
				}
				indexes[ix.Name] = true
				if len(ix.Fields) == 0 {
					issues = append(issues, Issue{File: d.Path, Line: ix.Line, Table: t.Name,
						Message: fmt.Sprintf("index %q has no fields", ix.Name)})
				}
				for _, c := range ix.Fields {
					if !fields[c] {
						issues = append(issues, Issue{File: d.Path, Line: ix.Line, Table: t.Name,
							Message: fmt.Sprintf("index %q references undeclared field %q", ix.Name, c)})
					}
				}
			}
		}
	}
	return issues
}
