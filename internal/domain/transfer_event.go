package domain

import "math/big"

// tokenDecimalsScale is 10^18, the DLYCOP base-unit scale.
var tokenDecimalsScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// TransferEvent represents one DLYCOP transfer record pushed by the
// live-query event feed. Read-only to this service.
type TransferEvent struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"` // 18-decimal base units, decimal string
	Confirmed       bool   `json:"confirmed"`
	TransactionHash string `json:"transaction_hash"`
	ObjectID        string `json:"objectId"`
}

// WholeTokens returns the transferred value truncated to whole tokens,
// mirroring the comparison unit used by order amounts. A malformed value
// returns ok=false; the caller decides how loudly to fail.
func (e TransferEvent) WholeTokens() (int64, bool) {
	raw, ok := new(big.Int).SetString(e.Value, 10)
	if !ok || raw.Sign() < 0 {
		return 0, false
	}
	whole := new(big.Int).Quo(raw, tokenDecimalsScale)
	if !whole.IsInt64() {
		return 0, false
	}
	return whole.Int64(), true
}
