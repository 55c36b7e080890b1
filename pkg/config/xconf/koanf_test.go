package xconf_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xrecur/pkg/config/xconf"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_Errors(t *testing.T) {
	_, err := xconf.New("")
	assert.ErrorIs(t, err, xconf.ErrEmptyPath)

	_, err = xconf.New("/tmp/conf.toml")
	assert.ErrorIs(t, err, xconf.ErrUnsupportedFormat)

	_, err = xconf.New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, xconf.ErrLoadFailed)

	_, err = xconf.New(writeFile(t, "bad.json", "{not json"))
	assert.ErrorIs(t, err, xconf.ErrParseFailed)

	_, err = xconf.NewFromBytes([]byte("a: 1"), "toml")
	assert.ErrorIs(t, err, xconf.ErrUnsupportedFormat)
}

func TestNew_YAML(t *testing.T) {
	path := writeFile(t, "job.yml", "job:\n  name: backup\n  interval_ms: 5000\n")
	cfg, err := xconf.New(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, xconf.FormatYAML, cfg.Format())

	var job struct {
		Name       string `koanf:"name"`
		IntervalMS int64  `koanf:"interval_ms"`
	}
	require.NoError(t, cfg.Unmarshal("job", &job))
	assert.Equal(t, "backup", job.Name)
	assert.Equal(t, int64(5000), job.IntervalMS)
	assert.Equal(t, "backup", cfg.Client().String("job.name"))
}

func TestNewFromBytes_Empty(t *testing.T) {
	cfg, err := xconf.NewFromBytes(nil, xconf.FormatJSON)
	require.NoError(t, err)
	assert.False(t, cfg.Exists("anything"))
	assert.Empty(t, cfg.Path())
	assert.ErrorIs(t, cfg.Reload(), xconf.ErrNotReloadable)
}

func TestOptions(t *testing.T) {
	cfg, err := xconf.NewFromBytes([]byte(`{"a":{"b":"v"}}`), xconf.FormatJSON,
		xconf.WithDelim("/"), xconf.WithTag("json"), nil)
	require.NoError(t, err)
	assert.True(t, cfg.Exists("a/b"))

	var out struct {
		B string `json:"b"`
	}
	require.NoError(t, cfg.Unmarshal("a", &out))
	assert.Equal(t, "v", out.B)
}

func TestStrictAccessors_JSON(t *testing.T) {
	cfg, err := xconf.NewFromBytes([]byte(`{
		"n": 100, "frac": 1.5, "s": "x", "b": true, "sb": "true",
		"d": "1m30s", "bad_d": "soon", "sn": "100"
	}`), xconf.FormatJSON)
	require.NoError(t, err)

	n, err := cfg.Int64("n")
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)

	_, err = cfg.Int64("frac")
	assert.ErrorIs(t, err, xconf.ErrTypeMismatch)
	_, err = cfg.Int64("sn")
	assert.ErrorIs(t, err, xconf.ErrTypeMismatch)
	_, err = cfg.Int64("missing")
	assert.ErrorIs(t, err, xconf.ErrKeyNotFound)

	b, err := cfg.Bool("b")
	require.NoError(t, err)
	assert.True(t, b)
	_, err = cfg.Bool("sb")
	assert.ErrorIs(t, err, xconf.ErrTypeMismatch)
	_, err = cfg.Bool("missing")
	assert.ErrorIs(t, err, xconf.ErrKeyNotFound)

	s, err := cfg.String("s")
	require.NoError(t, err)
	assert.Equal(t, "x", s)
	_, err = cfg.String("n")
	assert.ErrorIs(t, err, xconf.ErrTypeMismatch)

	d, err := cfg.Duration("d")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
	_, err = cfg.Duration("bad_d")
	assert.ErrorIs(t, err, xconf.ErrTypeMismatch)
}

func TestStrictAccessors_YAML(t *testing.T) {
	cfg, err := xconf.NewFromBytes([]byte("n: 42\nb: false\nq: \"yes\"\n"), xconf.FormatYAML)
	require.NoError(t, err)

	n, err := cfg.Int64("n")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	b, err := cfg.Bool("b")
	require.NoError(t, err)
	assert.False(t, b)

	_, err = cfg.Bool("q")
	assert.ErrorIs(t, err, xconf.ErrTypeMismatch)
}

func TestReload(t *testing.T) {
	path := writeFile(t, "c.json", `{"v": 1}`)
	cfg, err := xconf.New(path)
	require.NoError(t, err)
	old := cfg.Client()

	require.NoError(t, os.WriteFile(path, []byte(`{"v": 2}`), 0o600))
	require.NoError(t, cfg.Reload())
	v, err := cfg.Int64("v")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	// 旧快照仍可读
	assert.Equal(t, 1, old.Int("v"))

	// 解析失败保留旧配置
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))
	assert.ErrorIs(t, cfg.Reload(), xconf.ErrParseFailed)
	v, err = cfg.Int64("v")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	require.NoError(t, os.Remove(path))
	assert.ErrorIs(t, cfg.Reload(), xconf.ErrLoadFailed)
}
