package database

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"billflow/config"
	"billflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type captureWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *captureWriter) Printf(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func (w *captureWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

func TestLoggerSkipsRecordNotFound(t *testing.T) {
	w := &captureWriter{}
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "log.db")), &gorm.Config{Logger: newLogger(w)})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	var p models.Payment
	err = db.Where("reference = ?", "missing").First(&p).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, w.Lines())

	err = db.Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	lines := w.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "no_such_table")
}

func TestNewDBSQLite(t *testing.T) {
	db, err := NewDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "app.db"),
		MaxIdleConns:    2,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestNewDBUnknownDriver(t *testing.T) {
	_, err := NewDB(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, `unsupported database driver "oracle"`)
}
