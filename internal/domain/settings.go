package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Setting keys read by the core.
const (
	SettingInvitePrice = "invite_price"
	SettingSystemSplit = "system_split"
	SettingSellerSplit = "seller_split"
)

// RequiredSettings must all be present before the service accepts traffic.
var RequiredSettings = []string{
	SettingInvitePrice,
	SettingSystemSplit,
	SettingSellerSplit,
}

// IsKnownSetting reports whether key is one of the settings the service reads.
func IsKnownSetting(key string) bool {
	for _, k := range RequiredSettings {
		if k == key {
			return true
		}
	}
	return false
}

// MoneyPlaces is the precision of the single supported currency.
const MoneyPlaces = 2

// ComputeSplit divides gross between seller and system in proportion to the
// two weights. The seller share is rounded to MoneyPlaces and the system gets
// the remainder, so the two always add up to gross.
func ComputeSplit(gross, systemWeight, sellerWeight decimal.Decimal) (toSeller, toSystem decimal.Decimal, err error) {
	if systemWeight.IsNegative() || sellerWeight.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: split weights must not be negative", ErrConfigurationFault)
	}
	total := systemWeight.Add(sellerWeight)
	if total.IsZero() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: split weights sum to zero", ErrConfigurationFault)
	}

	toSeller = gross.Mul(sellerWeight).Div(total).Round(MoneyPlaces)
	toSystem = gross.Sub(toSeller)
	return toSeller, toSystem, nil
}
