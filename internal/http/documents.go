package http

import (
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/logging"
)

const uploadField = "file"

// projectScope tags the request context with the addressed project.
func projectScope(c echo.Context) string {
	projectID := c.Param("projectId")
	ctx := logging.WithScope(c.Request().Context(), logging.Scope{ProjectID: projectID})
	c.SetRequest(c.Request().WithContext(ctx))
	return projectID
}

func (s *Server) handleCreateDocument(c echo.Context) error {
	projectID := projectScope(c)
	var req CreateDocumentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	chunks, err := s.svc.Documents.CreateFromText(c.Request().Context(), principalFrom(c), projectID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, chunks)
}

func (s *Server) handleUploadDocument(c echo.Context) error {
	projectID := projectScope(c)
	fh, err := c.FormFile(uploadField)
	if err != nil {
		return apperr.BadRequest("file is required")
	}
	limit := int64(s.config.MaxUploadMB) << 20
	if fh.Size > limit {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "File too large")
	}

	f, err := fh.Open()
	if err != nil {
		return apperr.BadRequest("The uploaded file could not be read.")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return apperr.BadRequest("The uploaded file could not be read.")
	}

	mimeType := fh.Header.Get(echo.HeaderContentType)
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}

	chunks, err := s.svc.Documents.CreateFromFile(c.Request().Context(), principalFrom(c), projectID, data, mimeType, fh.Filename)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, chunks)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	projectID := projectScope(c)
	chunks, err := s.svc.Documents.List(c.Request().Context(), principalFrom(c), projectID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chunks)
}

func (s *Server) handleListGroups(c echo.Context) error {
	projectID := projectScope(c)
	groups, err := s.svc.Documents.ListGroups(c.Request().Context(), principalFrom(c), projectID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, groups)
}

func (s *Server) handleDeleteGroup(c echo.Context) error {
	projectID := projectScope(c)
	deleted, err := s.svc.Documents.DeleteGroup(c.Request().Context(), principalFrom(c), projectID, c.Param("groupId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deleted)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	deleted, err := s.svc.Documents.Delete(c.Request().Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deleted)
}

func (s *Server) handleSearch(c echo.Context) error {
	projectID := projectScope(c)
	var req SearchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	results, err := s.svc.Documents.SearchForPrincipal(c.Request().Context(), principalFrom(c), projectID, req.Query, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}
