// Package errors defines the domain error taxonomy shared by the ledger,
// deposit, deduction, refund and promo services.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a DomainError. Callers branch on the kind, never on the message.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindFrozenWallet       Kind = "WALLET_FROZEN"
	KindLimitExceeded      Kind = "LIMIT_EXCEEDED"
	KindGateway            Kind = "GATEWAY_ERROR"
	KindDuplicateReference Kind = "DUPLICATE_REFERENCE"
	KindPromoInvalid       Kind = "PROMO_INVALID"
	KindPromoExhausted     Kind = "PROMO_EXHAUSTED"
	KindNotFound           Kind = "NOT_FOUND"
)

// DomainError carries a kind, a finer grained code, a human message and
// structured details that are rendered to API clients as-is.
type DomainError struct {
	Kind    Kind                   `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on kind, and on code when the target sets one.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Status returns the HTTP status for the error kind.
func (e *DomainError) Status() int {
	return HTTPStatus(e.Kind)
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInsufficientFunds, KindLimitExceeded, KindPromoInvalid, KindPromoExhausted:
		return http.StatusBadRequest
	case KindFrozenWallet:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateReference:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks.
var (
	ErrValidation         = &DomainError{Kind: KindValidation}
	ErrInsufficientFunds  = &DomainError{Kind: KindInsufficientFunds}
	ErrFrozenWallet       = &DomainError{Kind: KindFrozenWallet}
	ErrLimitExceeded      = &DomainError{Kind: KindLimitExceeded}
	ErrGateway            = &DomainError{Kind: KindGateway}
	ErrDuplicateReference = &DomainError{Kind: KindDuplicateReference}
	ErrPromoInvalid       = &DomainError{Kind: KindPromoInvalid}
	ErrPromoExhausted     = &DomainError{Kind: KindPromoExhausted}
	ErrNotFound           = &DomainError{Kind: KindNotFound}
)

// As extracts a *DomainError from an error chain.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind Kind) bool {
	de, ok := As(err)
	return ok && de.Kind == kind
}

func Validation(message string, details map[string]interface{}) *DomainError {
	return &DomainError{Kind: KindValidation, Code: string(KindValidation), Message: message, Details: details}
}

func Gateway(message string, err error) *DomainError {
	return &DomainError{Kind: KindGateway, Code: string(KindGateway), Message: message, Err: err}
}

func DuplicateReference(reference string) *DomainError {
	return &DomainError{
		Kind:    KindDuplicateReference,
		Code:    string(KindDuplicateReference),
		Message: "reference already used",
		Details: map[string]interface{}{"reference": reference},
	}
}

func NotFound(entity string, id interface{}) *DomainError {
	return &DomainError{
		Kind:    KindNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", upper(entity)),
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]interface{}{"id": id},
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = c - 32
		case c == ' ' || c == '-':
			b[i] = '_'
		}
	}
	return string(b)
}
