package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/edupoints/internal/points/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Positive(t, ups)
	assert.Equal(t, ups, downs)
}

func TestApplyFallsBackToAutoMigrate(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migration_apply?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Apply(conn))
	for _, model := range domain.Models() {
		assert.True(t, conn.Migrator().HasTable(model))
	}
}

func TestApplyRequiresHandle(t *testing.T) {
	assert.Error(t, Apply(nil))
}
