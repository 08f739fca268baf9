package queue

import (
	"context"
	"fmt"
	"time"

	"clinicq/ticket-service/internal/store"
)

const (
	ticketNumberPad = 3
	numberDayFormat = "20060102"

	// maxSequence is a hard ceiling, far above any realistic daily volume.
	// Crossing it means the sequence source misbehaved; allocation fails
	// loudly rather than risk a wrapped or colliding number.
	maxSequence = 99999
)

// AllocatedNumber is one reserved slot in a service point's daily sequence.
type AllocatedNumber struct {
	Sequence int64
	Number   string
}

// NumberAllocator reserves duplicate-free ticket numbers per (service point,
// day). Serialization is delegated to the store's atomic NextSequence, so
// the guarantee holds across replicas as well as goroutines. Ticket numbers
// must never be minted anywhere else.
type NumberAllocator struct {
	directory store.ServiceDirectory
	tickets   store.TicketStore
}

func NewNumberAllocator(tickets store.TicketStore, directory store.ServiceDirectory) *NumberAllocator {
	return &NumberAllocator{directory: directory, tickets: tickets}
}

func (a *NumberAllocator) Allocate(ctx context.Context, serviceID string, day time.Time) (AllocatedNumber, error) {
	service, err := a.directory.GetServicePoint(ctx, serviceID)
	if err != nil {
		return AllocatedNumber{}, err
	}
	if !service.Active {
		return AllocatedNumber{}, store.ErrServiceInactive
	}

	seq, err := a.tickets.NextSequence(ctx, serviceID, day.UTC().Format(store.DayFormat))
	if err != nil {
		return AllocatedNumber{}, err
	}

	number, err := FormatTicketNumber(service.Code, day, seq)
	if err != nil {
		return AllocatedNumber{}, err
	}
	return AllocatedNumber{Sequence: seq, Number: number}, nil
}

// FormatTicketNumber renders {code}-{YYYYMMDD}-{seq}, zero-padded to three
// digits and widening beyond that instead of truncating. The byte format is
// load-bearing for systems reading historical tickets.
func FormatTicketNumber(serviceCode string, day time.Time, seq int64) (string, error) {
	if seq < 1 {
		return "", &AllocationError{Sequence: seq, Reason: "sequence must be positive"}
	}
	if seq > maxSequence {
		return "", &AllocationError{Sequence: seq, Reason: "sequence width exceeded"}
	}
	return fmt.Sprintf("%s-%s-%0*d", serviceCode, day.UTC().Format(numberDayFormat), ticketNumberPad, seq), nil
}
