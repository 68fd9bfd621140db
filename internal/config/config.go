// Package config implements the layered configuration store: one global
// scope shared by the framework and one auto-created scope per plugin.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HerbHall/botforge/pkg/plugin"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Compile-time interface guard.
var _ plugin.Config = (*Scope)(nil)

// Scope is a single JSON-shaped configuration document. The zero value is
// unusable; construct via Global, ForPlugin, or New.
type Scope struct {
	v *viper.Viper
}

// New wraps an existing viper instance. A nil viper yields a scope that
// returns zero values for every key.
func New(v *viper.Viper) *Scope {
	if v == nil {
		v = viper.New()
	}
	return &Scope{v: v}
}

// Global loads the global configuration document at path.
func Global(path string) (*Scope, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read global config %q: %w", path, err)
	}
	return &Scope{v: v}, nil
}

// ForPlugin loads the configuration scope owned by the named plugin,
// rooted at the plugin's config directory. If the backing document does
// not exist, the directory and an empty valid document are created first,
// so the scope file always exists after construction.
func ForPlugin(configDir, name string) (*Scope, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir %q: %w", configDir, err)
	}

	path := filepath.Join(configDir, name+".json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
			return nil, fmt.Errorf("create config file %q: %w", path, err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read plugin config %q: %w", path, err)
	}
	return &Scope{v: v}, nil
}

func key(keys []string) string {
	return strings.Join(keys, ".")
}

// Get returns the value at the given key path, or nil when any key in the
// path is absent.
func (s *Scope) Get(keys ...string) any {
	return s.v.Get(key(keys))
}

func (s *Scope) GetString(keys ...string) string {
	return s.v.GetString(key(keys))
}

func (s *Scope) GetBool(keys ...string) bool {
	return s.v.GetBool(key(keys))
}

func (s *Scope) GetInt(keys ...string) int {
	return s.v.GetInt(key(keys))
}

func (s *Scope) GetDuration(keys ...string) time.Duration {
	return s.v.GetDuration(key(keys))
}

// GetInt64s returns the value as a list of int64 identifiers. Non-list
// and non-numeric values yield nil.
func (s *Scope) GetInt64s(keys ...string) []int64 {
	raw := s.v.Get(key(keys))
	if raw == nil {
		return nil
	}
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		n, err := cast.ToInt64E(item)
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}

// GetStrings returns the value as a list of strings, or nil when the
// value is absent or not a list.
func (s *Scope) GetStrings(keys ...string) []string {
	raw := s.v.Get(key(keys))
	if raw == nil {
		return nil
	}
	if _, err := cast.ToSliceE(raw); err != nil {
		return nil
	}
	return s.v.GetStringSlice(key(keys))
}

func (s *Scope) IsSet(keys ...string) bool {
	return s.v.IsSet(key(keys))
}

// IsFalse reports whether the key is present and explicitly false.
func (s *Scope) IsFalse(keys ...string) bool {
	k := key(keys)
	return s.v.IsSet(k) && !s.v.GetBool(k)
}

// Sub returns the scope rooted at the given key path. Missing keys yield
// an empty scope, not nil.
func (s *Scope) Sub(keys ...string) *Scope {
	sub := s.v.Sub(key(keys))
	return New(sub)
}
