package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Noctocode/worken-ai/internal/chat"
)

func (s *Server) handleListConversations(c echo.Context) error {
	projectID := projectScope(c)
	list, err := s.svc.Conversations.FindByProject(c.Request().Context(), projectID, principalFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleCreateConversation(c echo.Context) error {
	projectID := projectScope(c)
	conv, err := s.svc.Conversations.Create(c.Request().Context(), projectID, principalFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(c echo.Context) error {
	detail, err := s.svc.Conversations.FindOne(c.Request().Context(), c.Param("id"), principalFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleDeleteConversation(c echo.Context) error {
	if err := s.svc.Conversations.Remove(c.Request().Context(), c.Param("id"), principalFrom(c).UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	reply, err := s.svc.Chat.Send(c.Request().Context(), principalFrom(c), chat.Request{
		ConversationID:  req.ConversationID,
		ProjectID:       req.ProjectID,
		Content:         req.Content,
		Model:           req.Model,
		EnableReasoning: req.EnableReasoning,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleCompareModels(c echo.Context) error {
	var req chat.CompareRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := s.svc.Evaluator.Compare(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
