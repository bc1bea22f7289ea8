package migrations_test

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DECODEproject/iotdashboard/pkg/migrations"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations.FS, migrations.Dir)
	assert.Nil(t, err)
	assert.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}

	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations dir: %s", name)
		}
	}

	assert.Equal(t, ups, downs)
}
