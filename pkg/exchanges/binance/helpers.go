package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"signal-core/pkg/exchanges/common"
)

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func mapStatus(s string) common.OrderStatus {
	switch s {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return common.StatusExpired
	}
	return common.StatusUnknown
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// mapAPIError turns a non-2xx response into a structured error.
func mapAPIError(httpStatus int, body []byte) *common.Error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	switch {
	case httpStatus == 429 || httpStatus == 418 || ae.Code == -1003:
		return common.E(common.CodeRateLimited, "binance rate limited (%d): %s", ae.Code, ae.Msg)
	case ae.Code == -2011 || ae.Code == -2013:
		return common.E(common.CodeOrderNotFound, "binance: %s", ae.Msg)
	case ae.Code == -1121:
		return common.E(common.CodeUnsupportedSymbol, "binance: %s", ae.Msg)
	case ae.Code == -4164:
		return common.E(common.CodeInsufficientNotional, "binance: %s", ae.Msg)
	case httpStatus >= 500:
		return common.E(common.CodeNetwork, "binance server error %d: %s", httpStatus, string(body))
	}
	return common.E(common.CodeExchangeRejected, "binance status %d (%d): %s", httpStatus, ae.Code, ae.Msg)
}
