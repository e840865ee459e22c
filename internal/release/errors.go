package release

import (
	"errors"
	"fmt"

	"github.com/iurnickita/warehouse/internal/model"
)

var (
	ErrRunNotFound  = errors.New("release run not found")
	ErrInvalidState = errors.New("release run is not in a state for this action")
	ErrBoxesChanged = errors.New("boxes in storage no longer match the invoice")
)

// ValidationError ввод отклонён до каких-либо изменений.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// PartialFailureError шаг не выполнен после того, как предыдущие шаги уже
// применены. Выдачу нужно продолжить (Resume) или сверить вручную.
type PartialFailureError struct {
	RunID string
	Step  model.ReleaseState
	Err   error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("release %s failed at %s, earlier steps are applied: %v", e.RunID, e.Step, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
