// Package allocator hands out the compact, human-facing sequential IDs
// carried by products. IDs freed by deletion go into a recycled pool and are
// reissued smallest-first, so the visible ID space stays dense.
package allocator

import (
	"context"
	"errors"

	"stockroom/internal/apperr"
	"stockroom/internal/model"
	"stockroom/internal/repository"
	"stockroom/pkg/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot is the read-only diagnostic view of the allocator state.
type Snapshot struct {
	Counter       int64 `json:"counter"`
	RecycledCount int64 `json:"recycled_count"`
	NextFresh     int64 `json:"next_fresh"`
}

// Service owns the persisted counter/pool state. It is injected into
// whatever create/delete paths need it; there is no package-level instance.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New seeds the single counter row if absent and returns the service.
func New(db *gorm.DB, log *logger.Logger) (*Service, error) {
	seed := model.SequenceCounter{ID: model.SequenceCounterID, Value: 0}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}
	return &Service{db: db, log: log}, nil
}

// Acquire returns the next sequential ID: the smallest recycled value if the
// pool is non-empty, otherwise the atomically incremented counter.
//
// The whole operation runs in one transaction (a savepoint when the caller
// already holds one via context), so two concurrent acquires can never
// observe the same value. A recycled candidate is claimed by deleting its
// row and checking rows-affected; losing that race falls through to the
// counter, which keeps uniqueness at the cost of one skipped pool slot.
func (s *Service) Acquire(ctx context.Context) (int64, error) {
	var assigned int64

	err := repository.GetDB(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		var rec model.RecycledID
		err := tx.Order("value ASC").First(&rec).Error
		switch {
		case err == nil:
			res := tx.Where("value = ?", rec.Value).Delete(&model.RecycledID{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				assigned = rec.Value
				return nil
			}
			// Another acquire claimed it first; issue a fresh value instead.
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Pool empty, issue a fresh value.
		default:
			return err
		}

		res := tx.Model(&model.SequenceCounter{}).
			Where("id = ?", model.SequenceCounterID).
			UpdateColumn("value", gorm.Expr("value + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("sequence counter row missing")
		}

		var counter model.SequenceCounter
		if err := tx.First(&counter, "id = ?", model.SequenceCounterID).Error; err != nil {
			return err
		}
		assigned = counter.Value
		return nil
	})
	if err != nil {
		// No degraded-mode fallback value: a failed acquire fails the
		// caller's create, it never hands out a colliding substitute.
		return 0, err
	}

	return assigned, nil
}

// Release puts a sequential ID back into the recycled pool. Releasing a
// value that is already pooled is a bug signal and reported as a conflict.
func (s *Service) Release(ctx context.Context, value int64) error {
	if value <= 0 {
		return apperr.Validation("sequential id must be positive, got %d", value)
	}

	err := repository.GetDB(ctx, s.db).Create(&model.RecycledID{Value: value}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.log.Warn().Int64("sequential_id", value).Msg("double release of sequential id")
			return apperr.Wrap(apperr.KindConflict, err, "sequential id %d already released", value)
		}
		return err
	}

	return nil
}

// Peek reports the allocator state without mutating it. Used by the
// dashboard and operational tooling, never by the hot path.
func (s *Service) Peek(ctx context.Context) (Snapshot, error) {
	db := repository.GetDB(ctx, s.db)

	var counter model.SequenceCounter
	if err := db.First(&counter, "id = ?", model.SequenceCounterID).Error; err != nil {
		return Snapshot{}, err
	}

	var recycled int64
	if err := db.Model(&model.RecycledID{}).Count(&recycled).Error; err != nil {
		return Snapshot{}, err
	}

	next := counter.Value + 1
	if recycled > 0 {
		var smallest model.RecycledID
		if err := db.Order("value ASC").First(&smallest).Error; err == nil {
			next = smallest.Value
		}
	}

	return Snapshot{Counter: counter.Value, RecycledCount: recycled, NextFresh: next}, nil
}
