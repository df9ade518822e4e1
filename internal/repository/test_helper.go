package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

// SetupTestDB opens an in-memory SQLite database with the inbox schema.
// Exported for the service tests.
func SetupTestDB(t testing.TB) *pg.DB {
	return setupTestDB(t).DB
}

func setupTestDB(t testing.TB) *testDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection to :memory: would get its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(&MessageEntity{}, &ReplyEntity{}, &StatusCounterEntity{})
	require.NoError(t, err)

	return &testDB{
		DB:    pg.Wrap(db),
		rawDB: db,
	}
}

func newTestMessage(subject string, at time.Time) *model.Message {
	return &model.Message{
		SenderName:  "Jane Doe",
		SenderEmail: "jane@example.com",
		Subject:     subject,
		Body:        "Hello, I need help.",
		Category:    model.CategorySupport,
		Source:      model.SourceContactForm,
		Status:      model.MessageStatusNew,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func mustCreateMessage(t testing.TB, repo *MessageRepository, msg *model.Message) *model.Message {
	created, err := repo.Create(context.Background(), msg)
	require.NoError(t, err)
	return created
}
