package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfig_MergesEnvironmentOverBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  name: mochimo
server:
  port: ":8080"
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)

	raw, err := LoadConfig("production", dir)
	require.NoError(t, err)

	var out struct {
		DB     DBConfig     `yaml:"db"`
		Server ServerConfig `yaml:"server"`
	}
	require.NoError(t, Decode(raw, &out))

	assert.Equal(t, "db.internal", out.DB.Host)
	assert.Equal(t, 5432, out.DB.Port)
	assert.Equal(t, "mochimo", out.DB.Name)
	assert.Equal(t, ":8080", out.Server.Port)
}

func TestLoadConfig_MissingEnvFileFallsBackToBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  host: localhost\n")

	raw, err := LoadConfig("staging", dir)
	require.NoError(t, err)

	var out struct {
		DB DBConfig `yaml:"db"`
	}
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, "localhost", out.DB.Host)
}

func TestLoadConfig_MissingBaseIsAnError(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestLoadConfig_SubstitutesSecretsAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
jwt:
  secret: "${MOCHIMO_TEST_SECRET}"
  ttl: 12h
storage:
  access_key: "${MOCHIMO_TEST_ACCESS}"
  secret_key: "${MOCHIMO_TEST_UNSET}"
`)
	writeFile(t, dir, "secrets.env", `
# comment
MOCHIMO_TEST_SECRET="from-file"
MOCHIMO_TEST_ACCESS='minio'
`)
	t.Setenv("MOCHIMO_TEST_SECRET", "from-env")

	raw, err := LoadConfig("", dir)
	require.NoError(t, err)

	var out struct {
		JWT     JWTConfig     `yaml:"jwt"`
		Storage StorageConfig `yaml:"storage"`
	}
	require.NoError(t, Decode(raw, &out))

	assert.Equal(t, "from-env", out.JWT.Secret)
	assert.Equal(t, 12*time.Hour, out.JWT.TTL)
	assert.Equal(t, "minio", out.Storage.AccessKey)
	assert.Equal(t, "${MOCHIMO_TEST_UNSET}", out.Storage.SecretKey)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("STORAGE_BUCKET", "receipts")

	db := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&db)
	assert.Equal(t, "pg", db.Host)
	assert.Equal(t, 6543, db.Port)

	jwt := JWTConfig{}
	OverrideJWTFromEnv(&jwt)
	assert.Equal(t, "s3cret", jwt.Secret)
	assert.True(t, jwt.CookieSecure)

	srv := ServerConfig{}
	OverrideServerFromEnv(&srv)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, srv.AllowedOrigins)

	st := StorageConfig{Bucket: "images"}
	OverrideStorageFromEnv(&st)
	assert.Equal(t, "receipts", st.Bucket)
}

func TestMergeMaps_Nested(t *testing.T) {
	dst := map[string]any{
		"a": map[string]any{"x": 1, "y": 2},
		"b": "keep",
	}
	src := map[string]any{
		"a": map[string]any{"y": 3},
	}

	got := mergeMaps(dst, src)
	assert.Equal(t, map[string]any{"x": 1, "y": 3}, got["a"])
	assert.Equal(t, "keep", got["b"])
}

func TestExpandString_Defaults(t *testing.T) {
	vars := map[string]string{"SET": "v", "EMPTY": ""}

	assert.Equal(t, "v", expandString("${SET:-fallback}", vars))
	assert.Equal(t, "fallback", expandString("${EMPTY:-fallback}", vars))
	assert.Equal(t, "redis:6379", expandString("${REDIS_ADDR:-redis:6379}", vars))
	assert.Equal(t, "", expandString("${EMPTY}", vars))
	assert.Equal(t, "${MISSING}", expandString("${MISSING}", vars))
	assert.Equal(t, "plain", expandString("plain", vars))
}

func TestReadEnvFile_StripsMatchingQuotesAndExport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secrets.env", "export A=\"x y\"\nB='it''s'\nC=bare\nnot a pair\n")

	vars, err := readEnvFile(filepath.Join(dir, "secrets.env"))
	require.NoError(t, err)
	assert.Equal(t, "x y", vars["A"])
	assert.Equal(t, "it''s", vars["B"])
	assert.Equal(t, "bare", vars["C"])
	assert.Len(t, vars, 3)
}
