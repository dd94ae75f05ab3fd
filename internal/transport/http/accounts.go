package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type accountResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func handleGetAccount(svc AccountReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		addr, err := parseAddress("address", c.Param("addr"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, accountResponse{
			Address: addr.Hex(),
			Balance: svc.Balance(addr).Dec(),
		})
	}
}

type customerTicketsResponse struct {
	Owner     string   `json:"owner"`
	EventID   uint64   `json:"event_id"`
	TicketIDs []uint64 `json:"ticket_ids"`
}

func handleCustomerTickets(svc TicketService) echo.HandlerFunc {
	return func(c echo.Context) error {
		owner, err := parseAddress("address", c.Param("addr"))
		if err != nil {
			return err
		}
		eventID, err := uintParam(c, "id")
		if err != nil {
			return err
		}
		ids, err := svc.CustomerTickets(eventID, owner)
		if err != nil {
			return err
		}
		if ids == nil {
			ids = []uint64{}
		}
		return c.JSON(http.StatusOK, customerTicketsResponse{Owner: owner.Hex(), EventID: eventID, TicketIDs: ids})
	}
}
