package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

func (s *Store) selectTickets() sq.SelectBuilder {
	return s.sb.Select("id", "order_id", "code", "code_issued_at", "failed_attempts").From("delivery_tickets")
}

func (s *Store) Ticket(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.oneTicket(ctx, s.selectTickets().Where(sq.Eq{"id": id}), id)
}

func (s *Store) TicketByOrder(ctx context.Context, orderID string) (*domain.Ticket, error) {
	return s.oneTicket(ctx, s.selectTickets().Where(sq.Eq{"order_id": orderID}), orderID)
}

func (s *Store) Tickets(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := s.scanTickets(ctx, s.selectTickets().OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: tickets: %w", err)
	}
	return tickets, nil
}

func (s *Store) oneTicket(ctx context.Context, b sq.SelectBuilder, key string) (*domain.Ticket, error) {
	tickets, err := s.scanTickets(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: ticket %s: %w", key, err)
	}
	if len(tickets) == 0 {
		return nil, fmt.Errorf("ticket %s: %w", key, domain.ErrTicketNotFound)
	}
	return &tickets[0], nil
}

func (s *Store) scanTickets(ctx context.Context, b sq.SelectBuilder) ([]domain.Ticket, error) {
	rows, err := query(ctx, s.db, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []domain.Ticket{}
	for rows.Next() {
		var (
			t        domain.Ticket
			issuedAt sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Code, &issuedAt, &t.FailedAttempts); err != nil {
			return nil, err
		}
		if t.CodeIssuedAt, err = parseNullTime(issuedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// StoreCode replaces the ticket's code and resets its failed attempts.
func (s *Store) StoreCode(ctx context.Context, ticketID, code string, issuedAt time.Time) (bool, error) {
	n, err := exec(ctx, s.db, s.sb.Update("delivery_tickets").
		Set("code", code).
		Set("code_issued_at", formatTime(issuedAt)).
		Set("failed_attempts", 0).
		Where(sq.Eq{"id": ticketID}))
	if err != nil {
		return false, fmt.Errorf("sqlstore: store code of ticket %s: %w", ticketID, err)
	}
	return n > 0, nil
}

var errNotConfirmed = errors.New("delivery not confirmed")

// ConfirmDelivery clears the ticket's code and marks its order delivered in
// one transaction. It reports false, changing nothing, when the code no
// longer matches or the order is already delivered or cancelled.
func (s *Store) ConfirmDelivery(ctx context.Context, ticketID, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	err := s.inTx(ctx, func(q querier) error {
		n, err := exec(ctx, q, s.sb.Update("delivery_tickets").
			Set("code", "").
			Set("code_issued_at", nil).
			Where(sq.Eq{"id": ticketID, "code": code}))
		if err != nil {
			return err
		}
		if n == 0 {
			return errNotConfirmed
		}

		n, err = exec(ctx, q, s.sb.Update("orders").
			Set("status", string(domain.StatusDelivered)).
			Where(sq.Expr("id = (SELECT order_id FROM delivery_tickets WHERE id = ?)", ticketID)).
			Where(sq.NotEq{"status": terminalStatuses}))
		if err != nil {
			return err
		}
		if n == 0 {
			return errNotConfirmed
		}
		return nil
	})
	switch {
	case errors.Is(err, errNotConfirmed):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("sqlstore: confirm delivery on ticket %s: %w", ticketID, err)
	}
	return true, nil
}

func (s *Store) RecordFailedAttempt(ctx context.Context, ticketID string) (int, error) {
	row, err := queryRow(ctx, s.db, s.sb.Update("delivery_tickets").
		Set("failed_attempts", sq.Expr("failed_attempts + 1")).
		Where(sq.Eq{"id": ticketID}).
		Suffix("RETURNING failed_attempts"))
	if err != nil {
		return 0, err
	}

	var attempts int
	err = row.Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("ticket %s: %w", ticketID, domain.ErrTicketNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: record failed attempt on ticket %s: %w", ticketID, err)
	}
	return attempts, nil
}

func (s *Store) RevokeCode(ctx context.Context, ticketID string) error {
	_, err := exec(ctx, s.db, s.sb.Update("delivery_tickets").
		Set("code", "").
		Set("code_issued_at", nil).
		Where(sq.Eq{"id": ticketID}))
	if err != nil {
		return fmt.Errorf("sqlstore: revoke code of ticket %s: %w", ticketID, err)
	}
	return nil
}
