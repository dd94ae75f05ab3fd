package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type healthResponse struct {
	Status string `json:"status"`
	Height uint64 `json:"height"`
}

// handleHealth reports liveness. The node is degraded while any component is
// missing its role binding.
func handleHealth(svc StatusReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		s := svc.Status()
		if !s.Marketplace || !s.Events || !s.Distributor {
			return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "degraded", Height: s.Height})
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", Height: s.Height})
	}
}

type statusResponse struct {
	Height      uint64 `json:"height"`
	Initialized struct {
		Marketplace bool `json:"marketplace"`
		Events      bool `json:"events"`
		Distributor bool `json:"distributor"`
	} `json:"initialized"`
	Components struct {
		Permissions string `json:"permissions"`
		Events      string `json:"events"`
		Distributor string `json:"distributor"`
		Marketplace string `json:"marketplace"`
	} `json:"components"`
}

func handleStatus(svc StatusReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		s := svc.Status()
		comp := svc.Components()

		var resp statusResponse
		resp.Height = s.Height
		resp.Initialized.Marketplace = s.Marketplace
		resp.Initialized.Events = s.Events
		resp.Initialized.Distributor = s.Distributor
		resp.Components.Permissions = comp.Permissions.Hex()
		resp.Components.Events = comp.Events.Hex()
		resp.Components.Distributor = comp.Distributor.Hex()
		resp.Components.Marketplace = comp.Marketplace.Hex()
		return c.JSON(http.StatusOK, resp)
	}
}
