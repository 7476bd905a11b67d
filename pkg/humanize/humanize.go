// Package humanize renders a raw base-unit ILP amount as a decimal string
// for log lines. It is presentation-only: nothing here is used for
// accounting (spec §1 Non-goals, §4.9).
package humanize

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Amount formats amount (in base units) at assetScale decimal places,
// followed by assetCode, e.g. Amount(1500000000, 9, "XRP") -> "1.5 XRP".
func Amount(amount uint64, assetScale uint8, assetCode string) string {
	value := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(assetScale))
	s := value.String()
	if assetCode == "" {
		return s
	}
	return s + " " + assetCode
}
