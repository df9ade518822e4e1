package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a message does not exist.
	ErrNotFound         = errors.New("message not found")
	ErrConcurrentUpdate = errors.New("concurrent update detected")
)

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{
		db,
	}
}

func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return uid, nil
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	entity := toMessageEntity(msg)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toMessageModel(entity), nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	return r.get(r.Read(ctx).WithContext(ctx), id)
}

// GetByIDForUpdate reads the row with SELECT ... FOR UPDATE. It must run
// inside WithinTransaction for the lock to outlive the call.
func (r *MessageRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Message, error) {
	return r.get(r.Write(ctx).WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *MessageRepository) get(q *gorm.DB, id string) (*model.Message, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var entity MessageEntity
	if err := q.Where("id = ?", uid).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toMessageModel(&entity), nil
}

func (r *MessageRepository) filtered(ctx context.Context, f model.MessageFilter) *gorm.DB {
	q := r.Read(ctx).WithContext(ctx).Model(&MessageEntity{})

	if f.Status != nil {
		q = q.Where("status = ?", string(*f.Status))
	}
	if f.Category != nil {
		q = q.Where("category = ?", string(*f.Category))
	}
	if f.Search != nil && *f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(*f.Search)) + "%"
		q = q.Where(
			`(LOWER(sender_name) LIKE ? ESCAPE '\' OR LOWER(sender_email) LIKE ? ESCAPE '\' OR LOWER(subject) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern,
		)
	}
	return q
}

// List returns one page of messages, newest first, and the number of
// messages matching the filter. The filter must already be normalized.
func (r *MessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*MessageEntity
	err := r.filtered(ctx, f).
		Order("created_at DESC").
		Order("id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}

	return toMessageModels(entities), total, nil
}

// UpdateStatus moves a message from one status to another. The update only
// applies while the stored status still equals from.
func (r *MessageRepository) UpdateStatus(ctx context.Context, id string, from, to model.MessageStatus, at time.Time) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("id = ? AND status = ?", uid, string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": at,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	return nil
}

func (r *MessageRepository) UpdateNotes(ctx context.Context, id string, notes string, at time.Time) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("id = ?", uid).
		Updates(map[string]any{
			"internal_notes": notes,
			"updated_at":     at,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// CountByStatus counts messages per status straight from the messages table.
func (r *MessageRepository) CountByStatus(ctx context.Context) (model.StatusCounts, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.Read(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}

	counts := model.NewStatusCounts()
	for _, row := range rows {
		counts[model.MessageStatus(row.Status)] = row.Total
	}
	return counts, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
