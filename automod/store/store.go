// Relational (gorm) implementation of the policy, violation, and audit log persistence interfaces.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/policy"
	"github.com/bluesky-social/tgmod/automod/violation"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ policy.Store = (*GormStore)(nil)
var _ violation.Store = (*GormStore)(nil)
var _ auditlog.Log = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, logger *slog.Logger) *GormStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GormStore{
		db:     db,
		logger: logger.With("system", "store"),
	}
}

func MigrateDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		FilterTerm{},
		GroupPolicy{},
		UserState{},
		ModerationEvent{},
	)
}

func (s *GormStore) ListTerms(ctx context.Context) ([]policy.FilterTerm, error) {
	rows := []FilterTerm{}
	if err := s.db.WithContext(ctx).Model(&FilterTerm{}).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]policy.FilterTerm, len(rows))
	for i := range rows {
		out[i] = rows[i].toPolicy()
	}
	return out, nil
}

func (s *GormStore) GetTerm(ctx context.Context, id uint64) (*policy.FilterTerm, error) {
	var row FilterTerm
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, policy.ErrTermNotFound
		}
		return nil, err
	}
	t := row.toPolicy()
	return &t, nil
}

func (s *GormStore) CreateTerm(ctx context.Context, term policy.FilterTerm) (*policy.FilterTerm, error) {
	if err := term.Validate(); err != nil {
		return nil, err
	}
	term.ID = 0
	row := filterTermRow(term)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	t := row.toPolicy()
	return &t, nil
}

func (s *GormStore) UpdateTerm(ctx context.Context, id uint64, update policy.TermUpdate) (*policy.FilterTerm, error) {
	var out policy.FilterTerm
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row FilterTerm
		if err := tx.First(&row, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return policy.ErrTermNotFound
			}
			return err
		}
		updated := update.Apply(row.toPolicy())
		if err := updated.Validate(); err != nil {
			return err
		}
		next := filterTermRow(updated)
		next.CreatedAt = row.CreatedAt
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		out = next.toPolicy()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GormStore) DeleteTerm(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Delete(&FilterTerm{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return policy.ErrTermNotFound
	}
	return nil
}

// inserts the default policy if the group has none; safe against concurrent first access
func (s *GormStore) loadPolicy(tx *gorm.DB, groupID string) (*GroupPolicy, error) {
	if groupID == "" {
		return nil, fmt.Errorf("%w: missing group id", policy.ErrInvalidPolicy)
	}
	var row GroupPolicy
	row.setFrom(policy.DefaultPolicy(groupID))
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("created default group policy", "group", groupID)
	}
	var existing GroupPolicy
	if err := tx.Where("group_id = ?", groupID).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *GormStore) GetPolicy(ctx context.Context, groupID string) (*policy.GroupPolicy, error) {
	row, err := s.loadPolicy(s.db.WithContext(ctx), groupID)
	if err != nil {
		return nil, err
	}
	p := row.toPolicy()
	return &p, nil
}

func (s *GormStore) UpdatePolicy(ctx context.Context, groupID string, update policy.PolicyUpdate) (*policy.GroupPolicy, error) {
	var out policy.GroupPolicy
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.loadPolicy(tx, groupID)
		if err != nil {
			return err
		}
		updated := update.Apply(row.toPolicy())
		if err := updated.Validate(); err != nil {
			return err
		}
		row.setFrom(updated)
		if err := tx.Save(row).Error; err != nil {
			return err
		}
		out = row.toPolicy()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GormStore) GetUser(ctx context.Context, userID string) (*violation.UserState, error) {
	var row UserState
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, violation.ErrUserNotFound
		}
		return nil, err
	}
	st := row.toViolation()
	return &st, nil
}

func (s *GormStore) PutUser(ctx context.Context, state *violation.UserState) error {
	row := userStateRow(state)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *GormStore) FindByUsername(ctx context.Context, username string) (*violation.UserState, error) {
	var row UserState
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		Order("updated_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, violation.ErrUserNotFound
		}
		return nil, err
	}
	st := row.toViolation()
	return &st, nil
}

func (s *GormStore) ListUsers(ctx context.Context, limit, offset int) ([]violation.UserState, error) {
	rows := []UserState{}
	q := s.db.WithContext(ctx).Model(&UserState{}).Order("user_id ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]violation.UserState, len(rows))
	for i := range rows {
		out[i] = rows[i].toViolation()
	}
	return out, nil
}

func (s *GormStore) AppendEvent(ctx context.Context, evt auditlog.Event) (*auditlog.Event, error) {
	row := moderationEventRow(evt)
	if row.Timestamp.IsZero() {
		row.Timestamp = s.db.NowFunc().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	out := row.toAuditlog()
	return &out, nil
}

func (s *GormStore) listEvents(q *gorm.DB, limit, offset int) ([]auditlog.Event, error) {
	rows := []ModerationEvent{}
	q = q.Model(&ModerationEvent{}).Order("id DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]auditlog.Event, len(rows))
	for i := range rows {
		out[i] = rows[i].toAuditlog()
	}
	return out, nil
}

func (s *GormStore) ListEvents(ctx context.Context, limit, offset int) ([]auditlog.Event, error) {
	return s.listEvents(s.db.WithContext(ctx), limit, offset)
}

func (s *GormStore) ListEventsByUser(ctx context.Context, userID string, limit int) ([]auditlog.Event, error) {
	return s.listEvents(s.db.WithContext(ctx).Where("user_id = ?", userID), limit, 0)
}
