package model

import "errors"

// Taxonomia de erros do motor de contests. Os chamadores devem embrulhar com
// fmt.Errorf("%w: ...") e testar com errors.Is.
var (
	ErrValidation        = errors.New("validation")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
)
