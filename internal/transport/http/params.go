package http

import (
	"encoding/json"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"

	"github.com/cimillas/ticket-ledger/internal/authsig"
)

func decode(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest(codeInvalidRequestBody, "invalid request body")
	}
	return nil
}

func uintParam(c echo.Context, name string) (uint64, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, badRequest(codeInvalidID, "invalid "+name)
	}
	return v, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, badRequest(codeMissingRequiredField, field+" is required")
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, badRequest(codeInvalidAddress, field+" is not an address")
	}
	return common.HexToAddress(s), nil
}

// parseAmount reads a decimal wei amount. An empty string is zero.
func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, badRequest(codeInvalidAmount, field+" must be a decimal amount of wei")
	}
	return v, nil
}

func parseSignature(s string) (authsig.Signature, error) {
	if s == "" {
		return authsig.Signature{}, badRequest(codeMissingRequiredField, "signature is required")
	}
	sig, err := authsig.ParseSignature(s)
	if err != nil {
		return authsig.Signature{}, badRequest(codeInvalidSignature, "signature must be 65 hex encoded bytes")
	}
	return sig, nil
}

// mustCaller returns the authenticated caller. Routes using it sit behind
// JWTAuth.
func mustCaller(c echo.Context) common.Address {
	caller, _ := callerFrom(c)
	return caller
}
