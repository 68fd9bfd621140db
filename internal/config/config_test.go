package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPluginCreatesDocument(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "weather", "config")

	scope, err := ForPlugin(dir, "weather")
	require.NoError(t, err)
	require.NotNil(t, scope)

	data, err := os.ReadFile(filepath.Join(dir, "weather.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))

	// A fresh scope has no keys but is fully usable.
	assert.Nil(t, scope.Get("handle"))
	assert.False(t, scope.GetBool("private"))
}

func TestForPluginKeepsExistingDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weather.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"handle": "wttr"}`), 0o644))

	scope, err := ForPlugin(dir, "weather")
	require.NoError(t, err)
	assert.Equal(t, "wttr", scope.GetString("handle"))
}

func TestGlobalMissingFile(t *testing.T) {
	_, err := Global(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestNewNilViper(t *testing.T) {
	scope := New(nil)
	require.NotNil(t, scope)
	assert.Nil(t, scope.Get("anything"))
	assert.Empty(t, scope.GetString("anything"))
}

func TestGetInt64s(t *testing.T) {
	v := viper.New()
	v.Set("admin.ids", []any{float64(1), float64(2), float64(3)})
	v.Set("admin.broken", "not-a-list")
	v.Set("admin.mixed", []any{float64(1), "x"})
	scope := New(v)

	assert.Equal(t, []int64{1, 2, 3}, scope.GetInt64s("admin", "ids"))
	assert.Nil(t, scope.GetInt64s("admin", "broken"))
	assert.Nil(t, scope.GetInt64s("admin", "mixed"))
	assert.Nil(t, scope.GetInt64s("admin", "absent"))
}

func TestGetStrings(t *testing.T) {
	v := viper.New()
	v.Set("dependencies", []any{"about", "usage"})
	v.Set("scalar", 42)
	scope := New(v)

	assert.Equal(t, []string{"about", "usage"}, scope.GetStrings("dependencies"))
	assert.Nil(t, scope.GetStrings("scalar"))
	assert.Nil(t, scope.GetStrings("absent"))
}

func TestIsFalse(t *testing.T) {
	v := viper.New()
	v.Set("private", false)
	v.Set("public", true)
	scope := New(v)

	assert.True(t, scope.IsFalse("private"), "explicitly false key")
	assert.False(t, scope.IsFalse("public"), "explicitly true key")
	assert.False(t, scope.IsFalse("absent"), "absent key is not false")
}

func TestSub(t *testing.T) {
	v := viper.New()
	v.Set("transport.mqtt.broker", "tcp://localhost:1883")
	scope := New(v)

	sub := scope.Sub("transport", "mqtt")
	require.NotNil(t, sub)
	assert.Equal(t, "tcp://localhost:1883", sub.GetString("broker"))

	empty := scope.Sub("absent")
	require.NotNil(t, empty)
	assert.Empty(t, empty.GetString("anything"))
}
