package store

import "errors"

var (
	ErrServiceNotFound       = errors.New("service point not found")
	ErrServiceInactive       = errors.New("service point inactive")
	ErrPractitionerNotFound  = errors.New("practitioner not found")
	ErrPractitionerInactive  = errors.New("practitioner inactive")
	ErrPractitionerMismatch  = errors.New("practitioner belongs to a different service point")
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrInvalidState          = errors.New("invalid ticket state")
	ErrConflict              = errors.New("concurrent update lost the race")
	ErrDuplicateTicketNumber = errors.New("duplicate ticket number")
)
