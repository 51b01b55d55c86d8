package raffle

import (
	"errors"
	"fmt"

	"rifa-app/internal/models"
)

var (
	ErrNoActiveRaffle          = errors.New("no hay rifa activa")
	ErrTicketNotFound          = errors.New("uno o más boletos no existen")
	ErrTicketUnavailable       = errors.New("boleto no disponible")
	ErrDuplicatePendingRequest = errors.New("ya existe una solicitud pendiente para este teléfono")
	ErrFolioCollision          = errors.New("colisión de folio")
	ErrPurchaseNotFound        = errors.New("compra no encontrada")
	ErrTicketIDNotFound        = errors.New("boleto no encontrado")
	ErrInvalidTransition       = errors.New("cambio de estado no permitido")
	ErrTicketPaid              = errors.New("el boleto pertenece a una compra pagada")
	ErrTicketContended         = errors.New("el boleto cambió de dueño, intenta de nuevo")
	ErrRaffleClosed            = errors.New("la rifa no está activa")
)

// ValidationError is malformed input rejected before touching storage.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TicketUnavailableError names the first requested number that is not FREE.
type TicketUnavailableError struct {
	Number int
	Status models.TicketStatus
}

func (e *TicketUnavailableError) Error() string {
	return fmt.Sprintf("El boleto %02d ya no está libre.", e.Number)
}

func (e *TicketUnavailableError) Is(target error) bool {
	return target == ErrTicketUnavailable
}

// TransitionError is returned when a purchase cannot move from From to To.
type TransitionError struct {
	From models.PurchaseStatus
	To   models.PurchaseStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no se puede pasar una compra de %s a %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StorageError wraps a database failure. The transaction was rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr leaves domain errors untouched and wraps everything else.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		se *StorageError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &se),
		errors.Is(err, ErrTicketNotFound),
		errors.Is(err, ErrTicketUnavailable),
		errors.Is(err, ErrDuplicatePendingRequest),
		errors.Is(err, ErrFolioCollision),
		errors.Is(err, ErrPurchaseNotFound),
		errors.Is(err, ErrTicketIDNotFound),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrTicketPaid),
		errors.Is(err, ErrTicketContended),
		errors.Is(err, ErrRaffleClosed),
		errors.Is(err, ErrNoActiveRaffle):
		return err
	}
	return &StorageError{Op: op, Err: err}
}
