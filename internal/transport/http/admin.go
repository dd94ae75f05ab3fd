package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

type capabilityRequest struct {
	Identity   string `json:"identity"`
	Capability string `json:"capability"`
	Enabled    bool   `json:"enabled"`
}

// handleSetCapability grants or revokes a capability. The permission
// registry rejects callers other than its administrator.
func handleSetCapability(svc Administrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req capabilityRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		id, err := parseAddress("identity", req.Identity)
		if err != nil {
			return err
		}
		capability, err := domain.ParseCapability(req.Capability)
		if err != nil {
			return badRequest(codeInvalidCapability, err.Error())
		}
		if err := svc.SetCapability(c.Request().Context(), mustCaller(c), id, capability, req.Enabled); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type roleRequest struct {
	Role string `json:"role"`
	// Identity may be the zero address to clear the role.
	Identity string `json:"identity"`
}

func handleRegisterRole(svc Administrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req roleRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		role, err := domain.ParseRole(req.Role)
		if err != nil {
			return badRequest(codeInvalidRole, err.Error())
		}
		id, err := parseAddress("identity", req.Identity)
		if err != nil {
			return err
		}
		if err := svc.RegisterRole(c.Request().Context(), mustCaller(c), role, id); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}
