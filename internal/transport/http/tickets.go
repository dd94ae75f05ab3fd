package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/marketplace"
)

type buyTicketRequest struct {
	// Value is the attached payment in wei and must equal InitialPrice.
	Value             string    `json:"value"`
	ResellProfitShare uint64    `json:"resell_profit_share"`
	PercentageAbsMax  uint64    `json:"percentage_abs_max"`
	Seat              [3]uint64 `json:"seat"`
	InitialPrice      string    `json:"initial_price"`
	Signature         string    `json:"signature"`
}

type ticketIDResponse struct {
	TicketID uint64 `json:"ticket_id"`
}

func handleBuyTicket(svc TicketService) echo.HandlerFunc {
	return func(c echo.Context) error {
		eventID, err := uintParam(c, "id")
		if err != nil {
			return err
		}
		var req buyTicketRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		value, err := parseAmount("value", req.Value)
		if err != nil {
			return err
		}
		if req.InitialPrice == "" {
			return badRequest(codeMissingRequiredField, "initial_price is required")
		}
		price, err := parseAmount("initial_price", req.InitialPrice)
		if err != nil {
			return err
		}
		sig, err := parseSignature(req.Signature)
		if err != nil {
			return err
		}

		ticketID, err := svc.BuyTicket(c.Request().Context(), mustCaller(c), value, marketplace.PrimarySaleInput{
			EventID:           eventID,
			ResellProfitShare: req.ResellProfitShare,
			PercentageAbsMax:  req.PercentageAbsMax,
			Seat:              req.Seat,
			InitialPrice:      price,
			Signature:         sig,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, ticketIDResponse{TicketID: ticketID})
	}
}

type resalePriceRequest struct {
	// Price is in wei; "0" withdraws the listing.
	Price string `json:"price"`
}

func handleSetResalePrice(svc TicketService) echo.HandlerFunc {
	return func(c echo.Context) error {
		eventID, ticketID, err := ticketParams(c)
		if err != nil {
			return err
		}
		var req resalePriceRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		if req.Price == "" {
			return badRequest(codeMissingRequiredField, "price is required")
		}
		price, err := parseAmount("price", req.Price)
		if err != nil {
			return err
		}
		if err := svc.SetResalePrice(c.Request().Context(), mustCaller(c), eventID, ticketID, price); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type purchaseRequest struct {
	Value string `json:"value"`
}

type splitResponse struct {
	Organizer      string `json:"organizer"`
	OrganizerShare string `json:"organizer_share"`
	Seller         string `json:"seller"`
	SellerShare    string `json:"seller_share"`
}

func handleBuyResale(svc TicketService) echo.HandlerFunc {
	return func(c echo.Context) error {
		eventID, ticketID, err := ticketParams(c)
		if err != nil {
			return err
		}
		var req purchaseRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		value, err := parseAmount("value", req.Value)
		if err != nil {
			return err
		}

		split, err := svc.BuyResale(c.Request().Context(), mustCaller(c), value, eventID, ticketID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, splitResponse{
			Organizer:      split.Organizer.Hex(),
			OrganizerShare: split.OrganizerShare.Dec(),
			Seller:         split.Seller.Hex(),
			SellerShare:    split.SellerShare.Dec(),
		})
	}
}

type refundRequest struct {
	RefundPercentage uint64 `json:"refund_percentage"`
	PercentageAbsMax uint64 `json:"percentage_abs_max"`
	Signature        string `json:"signature"`
}

func handleRefund(svc TicketService) echo.HandlerFunc {
	return func(c echo.Context) error {
		eventID, ticketID, err := ticketParams(c)
		if err != nil {
			return err
		}
		var req refundRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		sig, err := parseSignature(req.Signature)
		if err != nil {
			return err
		}

		amount, err := svc.Refund(c.Request().Context(), mustCaller(c), marketplace.RefundInput{
			EventID:          eventID,
			TicketID:         ticketID,
			RefundPercentage: req.RefundPercentage,
			PercentageAbsMax: req.PercentageAbsMax,
			Signature:        sig,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, amountResponse{Amount: amount.Dec()})
	}
}

type ticketResponse struct {
	ID                uint64 `json:"id"`
	Owner             string `json:"owner"`
	ResellProfitShare uint64 `json:"resell_profit_share"`
	PercentageAbsMax  uint64 `json:"percentage_abs_max"`
	InitialPrice      string `json:"initial_price"`
	PreviousPrice     string `json:"previous_price"`
	ResalePrice       string `json:"resale_price"`
	ForResale         bool   `json:"for_resale"`
}

func newTicketResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:                t.ID,
		Owner:             t.Owner.Hex(),
		ResellProfitShare: t.ResellProfitShare,
		PercentageAbsMax:  t.PercentageAbsMax,
		InitialPrice:      t.InitialPrice.Dec(),
		PreviousPrice:     t.PreviousPrice.Dec(),
		ResalePrice:       t.ResalePrice.Dec(),
		ForResale:         t.ForResale(),
	}
}

func handleGetTicket(svc TicketService) echo.HandlerFunc {
	return func(c echo.Context) error {
		eventID, ticketID, err := ticketParams(c)
		if err != nil {
			return err
		}
		t, err := svc.Ticket(eventID, ticketID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, newTicketResponse(t))
	}
}

func ticketParams(c echo.Context) (eventID, ticketID uint64, err error) {
	if eventID, err = uintParam(c, "id"); err != nil {
		return 0, 0, err
	}
	if ticketID, err = uintParam(c, "ticket"); err != nil {
		return 0, 0, err
	}
	return eventID, ticketID, nil
}
