package api

import (
	"github.com/gin-gonic/gin"
)

// NewRouter registers every route on a gin engine with the default
// logger and recovery middleware.
func NewRouter(s *Server) *gin.Engine {
	r := gin.Default()

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/schema", SchemaHandler(s))
		apiGroup.GET("/plan", PlanHandler(s))
		apiGroup.POST("/sync", SyncHandler(s))
		apiGroup.GET("/runs", RunListHandler(s))
		apiGroup.GET("/runs/:id", RunHandler(s))

		apiGroup.GET("/meta", MetaListHandler(s))
		apiGroup.GET("/meta/:table", MetaTableHandler(s))
		apiGroup.GET("/lint", LintHandler(s))
		apiGroup.POST("/admin/reload", AdminReloadHandler(s))
	}

	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}
	return r
}

