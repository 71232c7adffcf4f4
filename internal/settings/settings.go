// Package settings resolves the AI settings a batch runs with. Values stored in
// the settings table win over the process environment.
package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/rewriter"
)

const (
	KeyProvider = "ai_provider"
	KeyAPIKey   = "ai_api_key"
	KeyModel    = "ai_model"
)

// Keys lists the setting keys an operator may store.
var Keys = []string{KeyProvider, KeyAPIKey, KeyModel}

// Settings is a snapshot taken once per batch.
type Settings struct {
	Provider string
	APIKey   string
	Model    string
}

func (s Settings) Credentials() rewriter.Credentials {
	return rewriter.Credentials{Provider: s.Provider, APIKey: s.APIKey, Model: s.Model}
}

// Store reads stored settings rows.
type Store interface {
	All(ctx context.Context) (map[string]string, error)
}

type Resolver struct {
	store    Store
	defaults config.AIConfig
}

func NewResolver(store Store, defaults config.AIConfig) *Resolver {
	return &Resolver{store: store, defaults: defaults}
}

// Load returns the current settings. A nil store yields the environment defaults.
func (r *Resolver) Load(ctx context.Context) (Settings, error) {
	s := Settings{
		Provider: r.defaults.Provider,
		APIKey:   r.defaults.APIKey,
		Model:    r.defaults.Model,
	}
	if r.store == nil {
		return s, nil
	}

	rows, err := r.store.All(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	if v := strings.TrimSpace(rows[KeyProvider]); v != "" {
		s.Provider = v
	}
	if v := strings.TrimSpace(rows[KeyAPIKey]); v != "" {
		s.APIKey = v
	}
	if v := strings.TrimSpace(rows[KeyModel]); v != "" {
		s.Model = v
	}
	return s, nil
}

// ValidKey reports whether key may be stored.
func ValidKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}
