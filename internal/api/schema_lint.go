package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schemasync/internal/dsl"
)

// GET /api/lint reports issues in the loaded schema files without touching
// the database.
func LintHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, docs := s.Storage.Snapshot()
		issues := dsl.Lint(docs)
		if issues == nil {
			issues = []dsl.Issue{}
		}
		c.JSON(http.StatusOK, gin.H{"issues": issues})
	}
}
