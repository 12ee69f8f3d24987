package services

import (
	"testing"
	"time"

	"mailmirror/internal/graph"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"

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

func newTestGraphClient(t *testing.T, baseURL string) *graph.Client {
	t.Helper()

	client, err := graph.NewClient(graph.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost/callback",
		BaseURL:      baseURL,
		Instance:     baseURL,
		Timeout:      5 * time.Second,
		RateLimit:    1000,
	})
	require.NoError(t, err)
	return client
}

func seedBinding(t *testing.T, repo *repository.BindingRepository, userID uint) *models.Binding {
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

func passthroughCipher(t *testing.T) *TokenCipher {
	t.Helper()

	cipher, err := NewTokenCipher("")
	require.NoError(t, err)
	return cipher
}
