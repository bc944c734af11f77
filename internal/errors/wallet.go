package errors

import "github.com/shopspring/decimal"

// Limit types reported in LimitExceeded details.
const (
	LimitDaily         = "daily"
	LimitMonthly       = "monthly"
	LimitMaxBalance    = "max_balance"
	LimitDailySpending = "daily_spending"
)

func InsufficientFunds(balance, required decimal.Decimal) *DomainError {
	return &DomainError{
		Kind:    KindInsufficientFunds,
		Code:    "INSUFFICIENT_BALANCE",
		Message: "insufficient wallet balance",
		Details: map[string]interface{}{
			"currentBalance": balance.StringFixed(2),
			"requiredAmount": required.StringFixed(2),
			"shortfall":      required.Sub(balance).StringFixed(2),
		},
	}
}

func Frozen(reason string) *DomainError {
	return &DomainError{
		Kind:    KindFrozenWallet,
		Code:    "WALLET_FROZEN",
		Message: "wallet is frozen",
		Details: map[string]interface{}{"reason": reason},
	}
}

// LimitExceeded reports the limit that would be crossed by requested on top of used.
func LimitExceeded(limitType string, limit, used, requested decimal.Decimal) *DomainError {
	remaining := limit.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &DomainError{
		Kind:    KindLimitExceeded,
		Code:    upper(limitType) + "_LIMIT_EXCEEDED",
		Message: limitType + " limit exceeded",
		Details: map[string]interface{}{
			"limitType": limitType,
			"limit":     limit.StringFixed(2),
			"used":      used.StringFixed(2),
			"requested": requested.StringFixed(2),
			"remaining": remaining.StringFixed(2),
		},
	}
}
