package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Noctocode/worken-ai/internal/logging"
)

// teamScope tags the request context with the addressed team.
func teamScope(c echo.Context) string {
	teamID := c.Param("id")
	ctx := logging.WithScope(c.Request().Context(), logging.Scope{TeamID: teamID})
	c.SetRequest(c.Request().WithContext(ctx))
	return teamID
}

func (s *Server) handleListTeams(c echo.Context) error {
	ts, err := s.svc.Teams.FindAllForUser(c.Request().Context(), principalFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, teamViews(ts))
}

func (s *Server) handleCreateTeam(c echo.Context) error {
	var req CreateTeamRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	team, err := s.svc.Teams.Create(c.Request().Context(), principalFrom(c), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, teamView(*team))
}

func (s *Server) handleGetTeam(c echo.Context) error {
	teamID := teamScope(c)
	detail, err := s.svc.Teams.FindOne(c.Request().Context(), teamID, principalFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, teamDetailView(detail))
}

func (s *Server) handleUpdateBudget(c echo.Context) error {
	teamID := teamScope(c)
	var req UpdateBudgetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cents, err := s.svc.Teams.UpdateBudget(c.Request().Context(), teamID, principalFrom(c).UserID, req.MonthlyBudget)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BudgetResponse{MonthlyBudgetCents: cents})
}

func (s *Server) handleInviteMember(c echo.Context) error {
	teamID := teamScope(c)
	var req InviteMemberRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	m, err := s.svc.Teams.InviteMember(c.Request().Context(), teamID, req.Email, req.Role, principalFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, memberView(m))
}

func (s *Server) handleUpdateMemberRole(c echo.Context) error {
	teamID := teamScope(c)
	var req UpdateMemberRoleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	m, err := s.svc.Teams.UpdateMemberRole(c.Request().Context(), teamID, c.Param("memberId"), req.Role, principalFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, memberView(m))
}

func (s *Server) handleRemoveMember(c echo.Context) error {
	teamID := teamScope(c)
	if err := s.svc.Teams.RemoveMember(c.Request().Context(), teamID, c.Param("memberId"), principalFrom(c).UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetInvite(c echo.Context) error {
	invite, err := s.svc.Teams.GetInviteByToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, invite)
}

func (s *Server) handleAcceptInvite(c echo.Context) error {
	p := principalFrom(c)
	m, err := s.svc.Teams.AcceptInvite(c.Request().Context(), c.Param("token"), p.UserID, p.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, memberView(m))
}
