package repository

import (
	"context"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusCounterRepository keeps per-status totals so the inbox badge counts
// do not need a full scan of the messages table.
type StatusCounterRepository struct {
	*pg.DB
}

func NewStatusCounterRepository(db *pg.DB) *StatusCounterRepository {
	return &StatusCounterRepository{
		db,
	}
}

// Adjust adds delta to the total of a status. Callers run it in the same
// transaction as the status change it accounts for.
func (r *StatusCounterRepository) Adjust(ctx context.Context, status model.MessageStatus, delta int64) error {
	entity := &StatusCounterEntity{Status: string(status), Total: delta}

	return r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "status"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total": gorm.Expr("message_status_counters.total + ?", delta),
			}),
		}).
		Create(entity).
		Error
}

func (r *StatusCounterRepository) Counts(ctx context.Context) (model.StatusCounts, error) {
	var entities []*StatusCounterEntity
	if err := r.Read(ctx).WithContext(ctx).Find(&entities).Error; err != nil {
		return nil, err
	}

	counts := model.NewStatusCounts()
	for _, e := range entities {
		counts[model.MessageStatus(e.Status)] = e.Total
	}
	return counts, nil
}

// Reset overwrites every counter with the given totals.
func (r *StatusCounterRepository) Reset(ctx context.Context, counts model.StatusCounts) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, status := range model.AllStatuses {
			entity := &StatusCounterEntity{Status: string(status), Total: counts[status]}
			err := r.Write(ctx).WithContext(ctx).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "status"}},
					DoUpdates: clause.AssignmentColumns([]string{"total"}),
				}).
				Create(entity).
				Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
