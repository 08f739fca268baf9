package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicq/ticket-service/internal/models"
	"clinicq/ticket-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetServicePoint(ctx context.Context, serviceID string) (models.ServicePoint, error) {
	var service models.ServicePoint
	var avgMinutes sql.NullInt64
	row := s.pool.QueryRow(ctx, `
		SELECT service_id, name, code, avg_service_minutes, active
		FROM service_points
		WHERE service_id = $1
	`, serviceID)
	if err := row.Scan(&service.ServiceID, &service.Name, &service.Code, &avgMinutes, &service.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServicePoint{}, store.ErrServiceNotFound
		}
		return models.ServicePoint{}, err
	}
	if avgMinutes.Valid {
		service.AvgServiceMinutes = int(avgMinutes.Int64)
	}
	return service, nil
}

func (s *Store) GetPractitioner(ctx context.Context, practitionerID string) (models.Practitioner, error) {
	var practitioner models.Practitioner
	var specialty sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT practitioner_id, service_id, name, specialty, active
		FROM practitioners
		WHERE practitioner_id = $1
	`, practitionerID)
	if err := row.Scan(&practitioner.PractitionerID, &practitioner.ServiceID, &practitioner.Name, &specialty, &practitioner.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Practitioner{}, store.ErrPractitionerNotFound
		}
		return models.Practitioner{}, err
	}
	if specialty.Valid {
		practitioner.Specialty = specialty.String
	}
	return practitioner, nil
}

func (s *Store) InsertTicket(ctx context.Context, ticket models.Ticket) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (
			ticket_id, ticket_number, service_id, practitioner_id,
			patient_name, priority, status, note, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, ticket.TicketID, ticket.TicketNumber, ticket.ServiceID, ticket.PractitionerID,
		ticket.PatientName, ticket.Priority, ticket.Status, nullIfEmpty(ticket.Note), ticket.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicateTicketNumber
		}
		return err
	}

	if err = appendTicketEvent(ctx, tx, ticket, store.EventCreated); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, selectTicket+` WHERE ticket_id = $1`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	query := selectTicket + ` WHERE TRUE`
	var args []interface{}
	if filter.ServiceID != "" {
		args = append(args, filter.ServiceID)
		query += fmt.Sprintf(" AND service_id = $%d", len(args))
	}
	if filter.PractitionerID != "" {
		args = append(args, filter.PractitionerID)
		query += fmt.Sprintf(" AND practitioner_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Day != "" {
		args = append(args, filter.Day)
		query += fmt.Sprintf(" AND created_at::date = $%d::date", len(args))
	}
	query += " ORDER BY created_at ASC, ticket_number ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) UpdateTicketStatus(ctx context.Context, update store.StatusUpdate) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `UPDATE tickets SET status = $1`
	args := []interface{}{update.ToStatus}
	if update.CalledAt != nil {
		args = append(args, *update.CalledAt)
		query += fmt.Sprintf(", called_at = COALESCE(called_at, $%d)", len(args))
	}
	if update.CompletedAt != nil {
		args = append(args, *update.CompletedAt)
		query += fmt.Sprintf(", completed_at = $%d", len(args))
	}
	if update.Note != "" {
		args = append(args, update.Note)
		query += fmt.Sprintf(", note = $%d", len(args))
	}
	args = append(args, update.TicketID)
	query += fmt.Sprintf(" WHERE ticket_id = $%d", len(args))
	args = append(args, update.FromStatus)
	query += fmt.Sprintf(" AND status = $%d", len(args))
	query += returningTicket

	row := tx.QueryRow(ctx, query, args...)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Zero rows: either the ticket is gone or a concurrent
			// transition moved it off FromStatus first.
			var status string
			probe := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE ticket_id = $1`, update.TicketID)
			if err = probe.Scan(&status); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return models.Ticket{}, store.ErrTicketNotFound
				}
				return models.Ticket{}, err
			}
			err = store.ErrConflict
			return models.Ticket{}, err
		}
		return models.Ticket{}, err
	}

	if err = appendTicketEvent(ctx, tx, ticket, store.EventTypeForStatus(update.ToStatus)); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// NextSequence reserves the next ticket number for (serviceID, day) via an
// atomic upsert; concurrent callers each observe a distinct value.
func (s *Store) NextSequence(ctx context.Context, serviceID, day string) (int64, error) {
	var next int64
	row := s.pool.QueryRow(ctx, `
		INSERT INTO ticket_sequences (service_id, day, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (service_id, day)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, serviceID, day)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) LatestCalled(ctx context.Context, serviceID, practitionerID string) (models.Ticket, bool, error) {
	query := selectTicket + `
		WHERE service_id = $1 AND status IN ($2, $3)
	`
	args := []interface{}{serviceID, models.StatusCalled, models.StatusInService}
	if practitionerID != "" {
		args = append(args, practitionerID)
		query += fmt.Sprintf(" AND practitioner_id = $%d", len(args))
	}
	query += " ORDER BY called_at DESC LIMIT 1"

	row := s.pool.QueryRow(ctx, query, args...)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) TicketCounts(ctx context.Context, serviceID string, from, to time.Time) ([]store.StatusCount, error) {
	query := `
		SELECT t.service_id, s.code, s.name, t.status, COUNT(*)
		FROM tickets t
		JOIN service_points s ON s.service_id = t.service_id
		WHERE TRUE
	`
	var args []interface{}
	if serviceID != "" {
		args = append(args, serviceID)
		query += fmt.Sprintf(" AND t.service_id = $%d", len(args))
	}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND t.created_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND t.created_at <= $%d", len(args))
	}
	query += `
		GROUP BY t.service_id, s.code, s.name, t.status
		ORDER BY t.service_id ASC, t.status ASC
	`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []store.StatusCount
	for rows.Next() {
		var count store.StatusCount
		if err := rows.Scan(&count.ServiceID, &count.ServiceCode, &count.ServiceName, &count.Status, &count.Count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, ticket_seq, type, payload, created_at, prev_hash, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.TicketEvent
	for rows.Next() {
		var event store.TicketEvent
		if err := rows.Scan(&event.TicketID, &event.TicketSeq, &event.Type, &event.Payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

const selectTicket = `
	SELECT ticket_id, ticket_number, service_id, practitioner_id, patient_name,
		priority, status, note, created_at, called_at, completed_at
	FROM tickets
`

const returningTicket = `
	RETURNING ticket_id, ticket_number, service_id, practitioner_id, patient_name,
		priority, status, note, created_at, called_at, completed_at
`

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var practitionerIDNull sql.NullString
	var noteNull sql.NullString
	var calledAtNull sql.NullTime
	var completedAtNull sql.NullTime
	if err := row.Scan(&ticket.TicketID, &ticket.TicketNumber, &ticket.ServiceID, &practitionerIDNull,
		&ticket.PatientName, &ticket.Priority, &ticket.Status, &noteNull,
		&ticket.CreatedAt, &calledAtNull, &completedAtNull); err != nil {
		return models.Ticket{}, err
	}
	ticket.PractitionerID = nullStringPtr(practitionerIDNull)
	if noteNull.Valid {
		ticket.Note = noteNull.String
	}
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	return ticket, nil
}

// appendTicketEvent extends the ticket's hash chain inside the caller's
// transaction. The advisory lock serializes writers on the same chain.
func appendTicketEvent(ctx context.Context, tx pgx.Tx, ticket models.Ticket, eventType string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ticket.TicketID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT ticket_seq, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq DESC
		LIMIT 1
		FOR UPDATE
	`, ticket.TicketID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	payload, err := store.EncodeEventPayload(ticket)
	if err != nil {
		return err
	}
	nextSeq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	createdAt := time.Now().UTC()
	hash := store.ComputeTicketEventHash(prev, ticket.TicketID, eventType, payload, createdAt, nextSeq)

	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_events (ticket_id, ticket_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ticket.TicketID, nextSeq, eventType, payload, createdAt, prev, hash)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
