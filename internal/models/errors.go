package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData — истории меньше, чем longPeriod: сигнала нет, цикл продолжается.
	ErrInsufficientData = errors.New("insufficient price history")

	// ErrCalculation — в истории не-конечные цены и т.п.; пара пропускается на этот цикл.
	ErrCalculation = errors.New("signal calculation failed")

	// ErrInsufficientHistory — у AI-адаптера мало исходов, отдаём дефолты с confidence=0.
	ErrInsufficientHistory = errors.New("insufficient trade history")

	// ErrHalted — торговля остановлена риск-менеджером, выход только через confirm-resume.
	ErrHalted = errors.New("trading halted")

	ErrRateLimited = errors.New("rate limited")
	ErrNetwork     = errors.New("network error")
)

// ValidationError возвращаем на невалидные команды: прежнее значение не меняется.
type ValidationError struct {
	Field string
	Range string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s, allowed range %s", e.Field, e.Range)
}

func NewValidationError(field, allowed string) *ValidationError {
	return &ValidationError{Field: field, Range: allowed}
}
