package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/ticket-ledger/internal/queue"
	"github.com/cimillas/ticket-ledger/internal/storage/postgres"
)

type receiptsResponse struct {
	Receipts []queue.ReceiptMessage `json:"receipts"`
}

// handleListReceipts serves the archive in commit order. Query parameters:
// method, from (address), from_seq, limit.
func handleListReceipts(store ReceiptStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var f postgres.ReceiptFilter
		f.Method = c.QueryParam("method")
		if from := c.QueryParam("from"); from != "" {
			addr, err := parseAddress("from", from)
			if err != nil {
				return err
			}
			f.From = addr
		}
		if s := c.QueryParam("from_seq"); s != "" {
			seq, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return badRequest(codeInvalidID, "invalid from_seq")
			}
			f.FromSeq = seq
		}
		if s := c.QueryParam("limit"); s != "" {
			limit, err := strconv.Atoi(s)
			if err != nil || limit < 1 {
				return badRequest(codeInvalidRequestBody, "limit must be a positive integer")
			}
			f.Limit = limit
		}

		receipts, err := store.ListReceipts(c.Request().Context(), f)
		if err != nil {
			return err
		}
		resp := receiptsResponse{Receipts: make([]queue.ReceiptMessage, 0, len(receipts))}
		for _, r := range receipts {
			resp.Receipts = append(resp.Receipts, queue.NewReceiptMessage(r))
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func handleGetReceipt(store ReceiptStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		seq, err := uintParam(c, "seq")
		if err != nil {
			return err
		}
		r, err := store.GetReceipt(c.Request().Context(), seq)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, queue.NewReceiptMessage(r))
	}
}
