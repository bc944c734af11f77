/*
Package wallet is the ledger store: the only code that changes a balance.

Every mutation runs in one database transaction that locks the wallet row,
re-checks frozen state and limits, appends an entry and persists the new
balance. The balance cache is invalidated after the commit and never written
by a mutation, so a reader can only ever fill it with committed state.

Usage:

	svc := wallet.NewService(repositories.NewWalletRepository(db), balanceCache, cfg, metrics)

	// Single operation
	res, err := svc.Debit(ctx, wallet.DebitRequest{
	    UserID:    userID,
	    Amount:    decimal.RequireFromString("12.50"),
	    Type:      models.TransactionTypePurchase,
	    Reference: "PUR-ORD-1001",
	})

	// Several writes committed together, e.g. an order status change and its refund
	err = svc.InTx(ctx, func(tx *wallet.LedgerTx) error {
	    orders := repositories.NewOrderRepository(tx.DB())
	    ...
	    _, err := tx.Credit(wallet.CreditRequest{...})
	    return err
	})

Amounts are decimals with two places. Credits are stored with a positive
amount and debits with a negative one; for completed entries
balanceAfter = balanceBefore + amount.

Errors are *errors.DomainError values: Validation, InsufficientFunds,
FrozenWallet, LimitExceeded, DuplicateReference and NotFound.
*/
package wallet
