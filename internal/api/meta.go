package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schemasync/internal/dsl"
)

type metaTableListItem struct {
	Table   string `json:"table"`
	File    string `json:"file"`
	Fields  int    `json:"fields"`
	Indexes int    `json:"indexes"`
}

type metaTable struct {
	File string `json:"file"`
	*dsl.Table
}

// GET /api/meta
func MetaListHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, docs := s.Storage.Snapshot()
		out := make([]metaTableListItem, 0, countTables(docs))
		for _, d := range docs {
			for _, t := range d.Tables {
				out = append(out, metaTableListItem{
					Table:   t.Name,
					File:    d.Path,
					Fields:  len(t.Fields),
					Indexes: len(t.Indexes),
				})
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/meta/:table
func MetaTableHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("table")
		_, docs := s.Storage.Snapshot()
		for _, d := range docs {
			for _, t := range d.Tables {
				if t.Name == name {
					c.JSON(http.StatusOK, metaTable{File: d.Path, Table: t})
					return
				}
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Table not found"})
	}
}
