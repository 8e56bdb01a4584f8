package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Noctocode/worken-ai/internal/projects"
)

func (s *Server) handleListProjects(c echo.Context) error {
	filter, err := projects.ParseFilter(c.QueryParam("filter"))
	if err != nil {
		return err
	}
	ps, err := s.svc.Projects.FindAll(c.Request().Context(), principalFrom(c).UserID, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, projectViews(ps))
}

func (s *Server) handleGetProject(c echo.Context) error {
	p, err := s.svc.Projects.FindOne(c.Request().Context(), c.Param("id"), principalFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, projectView(*p))
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req CreateProjectRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := s.svc.Projects.Create(c.Request().Context(), principalFrom(c), projects.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Model:       req.Model,
		TeamID:      req.TeamID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, projectView(*p))
}
