package cartservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/quitq-checkout/internal/cart-service/domain"
)

type Store interface {
	CartLines(ctx context.Context, userID int64) ([]domain.CartLine, error)
	DeleteCartLines(ctx context.Context, userID int64) (int64, error)
}

// Snapshot reads a user's cart and freezes it for one checkout attempt.
type Snapshot struct {
	store Store
}

func NewSnapshot(store Store) *Snapshot {
	return &Snapshot{store: store}
}

// Read returns a copy of the current cart lines. An empty cart is not an
// error.
func (s *Snapshot) Read(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	lines, err := s.store.CartLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: read lines of user %d: %w", userID, err)
	}

	frozen := make([]domain.CartLine, len(lines))
	copy(frozen, lines)
	return frozen, nil
}

// Clear removes every line of the user's cart and reports whether anything
// was removed. Clearing an empty cart is a no-op.
func (s *Snapshot) Clear(ctx context.Context, userID int64) (bool, error) {
	n, err := s.store.DeleteCartLines(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("cart: clear user %d: %w", userID, err)
	}
	slog.DebugContext(ctx, "cart cleared", "user_id", userID, "lines", n)
	return n > 0, nil
}
