package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/ticket-ledger/internal/app"
)

type createEventRequest struct {
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
	TicketsAmount uint64    `json:"tickets_amount"`
	StartTime     time.Time `json:"start_time"`
}

func (r createEventRequest) validate() error {
	if r.Name == "" || r.Symbol == "" {
		return badRequest(codeMissingRequiredField, "name and symbol are required")
	}
	if r.StartTime.IsZero() {
		return badRequest(codeMissingRequiredField, "start_time is required")
	}
	return nil
}

type createEventResponse struct {
	ID      uint64 `json:"id"`
	Tickets string `json:"tickets"`
}

func handleCreateEvent(svc EventService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createEventRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		if err := req.validate(); err != nil {
			return err
		}

		created, err := svc.CreateEvent(c.Request().Context(), mustCaller(c), app.CreateEventInput{
			Name:          req.Name,
			Symbol:        req.Symbol,
			TicketsAmount: req.TicketsAmount,
			StartTime:     req.StartTime,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, createEventResponse{ID: created.ID, Tickets: created.Tickets.Hex()})
	}
}

type updateEventRequest struct {
	TicketsAmount uint64    `json:"tickets_amount"`
	StartTime     time.Time `json:"start_time"`
}

func handleUpdateEvent(svc EventService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uintParam(c, "id")
		if err != nil {
			return err
		}
		var req updateEventRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		if req.StartTime.IsZero() {
			return badRequest(codeMissingRequiredField, "start_time is required")
		}

		err = svc.UpdateEvent(c.Request().Context(), mustCaller(c), app.UpdateEventInput{
			EventID:       id,
			TicketsAmount: req.TicketsAmount,
			StartTime:     req.StartTime,
		})
		if err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type amountResponse struct {
	Amount string `json:"amount"`
}

func handleWithdraw(svc EventService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uintParam(c, "id")
		if err != nil {
			return err
		}
		amount, err := svc.WithdrawEventFunds(c.Request().Context(), mustCaller(c), id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, amountResponse{Amount: amount.Dec()})
	}
}

type eventResponse struct {
	ID             uint64    `json:"id"`
	Owner          string    `json:"owner"`
	Tickets        string    `json:"tickets"`
	TicketsAmount  uint64    `json:"tickets_amount"`
	SoldTickets    uint64    `json:"sold_tickets"`
	Available      uint64    `json:"available"`
	CollectedFunds string    `json:"collected_funds"`
	StartTime      time.Time `json:"start_time"`
	Started        bool      `json:"started"`
}

func handleGetEvent(svc EventService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uintParam(c, "id")
		if err != nil {
			return err
		}
		ev, err := svc.Event(id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, eventResponse{
			ID:             ev.ID,
			Owner:          ev.Owner.Hex(),
			Tickets:        ev.Tickets.Hex(),
			TicketsAmount:  ev.TicketsAmount,
			SoldTickets:    ev.SoldTickets,
			Available:      ev.Available,
			CollectedFunds: ev.CollectedFunds.Dec(),
			StartTime:      ev.StartTime.UTC(),
			Started:        ev.Started,
		})
	}
}
