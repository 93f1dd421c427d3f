package postgres

import (
	"context"
	"fmt"

	"github.com/LCLUCam/VULCAN/domain"
)

// allocateRunNumberQuery bumps the single counter row atomically, so
// concurrent allocations serialize on the row lock and every caller
// sees a distinct, strictly increasing value.
const allocateRunNumberQuery = `UPDATE vulcan_run_counter
	 SET n = n + 1
	 WHERE id = TRUE
	 RETURNING n`

func (s *Store) NextRunNumber(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("history store not initialized")
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, allocateRunNumberQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrRunNumberAllocation, err)
	}
	return n, nil
}
