package wallet

import "github.com/shopspring/decimal"

// Default configuration values
const (
	DefaultCurrency           = "GHS"
	DefaultRecentTransactions = 10
)

var (
	DefaultDailyLimit         = decimal.NewFromInt(10000)
	DefaultMonthlyLimit       = decimal.NewFromInt(50000)
	DefaultMaxBalance         = decimal.NewFromInt(100000)
	DefaultDailySpendingLimit = decimal.NewFromInt(5000)
)

// Operation names used for metrics and logs.
const (
	OpCredit      = "credit"
	OpDebit       = "debit"
	OpPending     = "record_pending"
	OpSettle      = "settle_pending"
	OpFreeze      = "freeze"
	OpGetBalance  = "get_balance"
	OpAdjust      = "adjust"
	ResultSuccess = "success"
	ResultFailure = "failure"
)
