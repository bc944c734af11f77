package errors

func PromoInvalid(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindPromoInvalid,
		Code:    string(KindPromoInvalid),
		Message: message,
		Details: map[string]interface{}{"code": code},
	}
}

func PromoExhausted(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindPromoExhausted,
		Code:    string(KindPromoExhausted),
		Message: message,
		Details: map[string]interface{}{"code": code},
	}
}
