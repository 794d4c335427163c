package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schemasync/internal/dsl"
)

type reloadReq struct {
	SchemaDir string `json:"schema_dir"` // directory with .dsl/.yaml files
}

// Reload re-reads the schema files from dir (or the current directory when
// empty). Files with lint issues are rejected and the old set stays active.
func (s *Server) Reload(dir string) ([]dsl.Issue, error) {
	if strings.TrimSpace(dir) == "" {
		dir, _ = s.Storage.Snapshot()
	}
	docs, err := dsl.LoadAll(dir)
	if err != nil {
		return nil, err
	}
	if issues := dsl.Lint(docs); len(issues) > 0 {
		return issues, nil
	}
	s.Storage.Replace(dir, docs)
	s.log().Info("schema files reloaded", "dir", dir, "files", len(docs))
	return nil, nil
}

// POST /api/admin/reload
func AdminReloadHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reloadReq
		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
				return
			}
		}

		issues, err := s.Reload(req.SchemaDir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "schema load error", "details": err.Error()})
			return
		}
		if len(issues) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "schema has blocking issues",
				"issues": issues,
				"hint":   "fix the schema files and retry",
			})
			return
		}

		dir, docs := s.Storage.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"ok":        true,
			"schemaDir": dir,
			"files":     len(docs),
			"tables":    countTables(docs),
		})
	}
}

func countTables(docs []*dsl.Document) int {
	n := 0
	for _, d := range docs {
		n += len(d.Tables)
	}
	return n
}
