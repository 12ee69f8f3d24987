package repository

import (
	"testing"
	"time"

	"mailmirror/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// A fresh connection to :memory: is a fresh database; keep the
	// pool at one connection so every query sees the same data.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Binding{}, &models.Message{}, &models.MessageAttachment{}))
	return db
}

func newBinding(t *testing.T, repo *BindingRepository, userID uint) *models.Binding {
	t.Helper()

	binding := &models.Binding{
		UserID:              userID,
		Provider:            models.ProviderOutlook,
		Email:               "user@example.com",
		AccessToken:         "access-token",
		RefreshToken:        "refresh-token",
		TokenExpiresAt:      time.Now().Add(time.Hour),
		SyncStatus:          models.SyncStatusActive,
		AutoSyncEnabled:     true,
		SyncIntervalMinutes: 15,
	}
	require.NoError(t, repo.Create(binding))
	return binding
}
