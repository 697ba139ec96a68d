package api

import "github.com/labstack/echo/v4"

// RegisterHandlers mounts all API routes on the given group.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.POST("/templates", s.CreateTemplate)
	g.GET("/templates", s.ListTemplates)
	g.GET("/templates/:id", s.GetTemplate)

	g.POST("/workflows", s.StartWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.POST("/workflows/:id/advance", s.AdvanceWorkflow)

	g.POST("/assignments", s.AssignStage)
	g.POST("/assignments/:id/complete", s.CompleteAssignment)

	g.GET("/tasks", s.ListMyTasks)

	g.GET("/permissions/check", s.CheckPermission)
	g.POST("/permissions", s.GrantPermission)
}
