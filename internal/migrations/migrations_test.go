package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	ms, err := Load(files, "sql")
	require.NoError(t, err)
	require.NotEmpty(t, ms)

	for i, m := range ms {
		assert.Equal(t, i+1, m.Version, m.Name)
		assert.NotEmpty(t, m.SQL)
	}
	assert.Contains(t, ms[len(ms)-1].SQL, "outbox_events")
}

func TestLoad_SortsAndSkipsOtherFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0010_later.sql": {Data: []byte("SELECT 10")},
		"m/0002_first.sql": {Data: []byte("SELECT 2")},
		"m/README.md":      {Data: []byte("docs")},
	}
	ms, err := Load(fsys, "m")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 2, ms[0].Version)
	assert.Equal(t, 10, ms[1].Version)
}

func TestLoad_RejectsBadNames(t *testing.T) {
	for name, fsys := range map[string]fstest.MapFS{
		"no version": {"m/init.sql": {Data: []byte("x")}},
		"not number": {"m/abc_init.sql": {Data: []byte("x")}},
		"duplicate": {
			"m/0001_a.sql": {Data: []byte("x")},
			"m/1_b.sql":    {Data: []byte("y")},
		},
	} {
		_, err := Load(fsys, "m")
		assert.Error(t, err, name)
	}
}
