package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/core/ports"
)

// SelectWorkingSet narrows a table to the identifiers a run should submit.
// Table order is preserved in every mode.
func SelectWorkingSet(
	ctx context.Context,
	ledger ports.RunLedger,
	ids []domain.Identifier,
	mode domain.WorkingSetMode,
	subset []int,
) ([]domain.Identifier, error) {
	switch mode {
	case domain.ModeAll, "":
		return ids, nil
	case domain.ModeSubset:
		picked := make(map[int]bool, len(subset))
		for _, idx := range subset {
			if idx < 0 || idx >= len(ids) {
				return nil, fmt.Errorf("%w: index %d out of range [0,%d)", domain.ErrInvalidInput, idx, len(ids))
			}
			picked[idx] = true
		}
		out := make([]domain.Identifier, 0, len(picked))
		for i, id := range ids {
			if picked[i] {
				out = append(out, id)
			}
		}
		return out, nil
	case domain.ModeFailures, domain.ModePending:
		statuses, err := ledger.LatestStatuses(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load latest statuses: %w", err)
		}
		out := make([]domain.Identifier, 0, len(ids))
		for _, id := range ids {
			status, seen := statuses[id]
			if mode == domain.ModeFailures && seen && status == domain.ItemFailure {
				out = append(out, id)
			}
			if mode == domain.ModePending && !seen {
				out = append(out, id)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown working set mode %q", domain.ErrInvalidInput, mode)
	}
}
