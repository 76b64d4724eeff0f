package cliutil

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDatabase(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "nested", "tgmod.db")
	db, err := SetupDatabase("sqlite://"+path, DatabaseOptions{Logger: slog.Default()})
	require.NoError(t, err)
	assert.NoError(db.Exec("SELECT 1").Error)

	sqldb, err := db.DB()
	require.NoError(t, err)
	assert.Equal(1, sqldb.Stats().MaxOpenConnections)
	assert.NoError(sqldb.Close())

	_, err = SetupDatabase("mysql://root@localhost/tgmod", DatabaseOptions{})
	assert.Error(err)
	assert.NotContains(err.Error(), "root@localhost")
}

func TestSetupSlog(t *testing.T) {
	assert := assert.New(t)
	defaultLogger := slog.Default()
	defer slog.SetDefault(defaultLogger)

	for _, lvl := range []string{"", "info", "DEBUG", "warn", "error"} {
		_, err := ParseLogLevel(lvl)
		assert.NoError(err, lvl)
	}
	_, err := ParseLogLevel("loud")
	assert.Error(err)

	var buf bytes.Buffer
	logger, err := SetupSlog(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", "k", "v")
	assert.NotContains(buf.String(), "dropped")
	assert.Contains(buf.String(), `"msg":"kept"`)

	_, err = SetupSlog(&buf, "info", "xml")
	assert.Error(err)
}
