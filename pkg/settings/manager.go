package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/unraidmate/console/pkg/models"
	"github.com/unraidmate/console/pkg/store"
)

// SettingsManager reads and writes the settings object under the
// "settings" key. The last loaded value is cached.
type SettingsManager struct {
	mu       sync.RWMutex
	kv       store.Store
	settings *models.AppSettings
}

// NewSettingsManager creates a settings manager backed by kv
func NewSettingsManager(kv store.Store) *SettingsManager {
	return &SettingsManager{kv: kv}
}

// Load reads the settings object from the store. Missing settings yield defaults.
func (sm *SettingsManager) Load(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	raw, ok, err := sm.kv.Get(ctx, store.KeySettings)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	if !ok || raw == "" {
		d := models.DefaultAppSettings()
		sm.settings = &d
		return nil
	}

	var s models.AppSettings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}

	// Older objects may lack newer fields
	s = s.Normalize()
	sm.settings = &s
	return nil
}

// Get returns the current settings, loading them on first use. Load
// failures are logged and defaults returned.
func (sm *SettingsManager) Get(ctx context.Context) models.AppSettings {
	sm.mu.RLock()
	cached := sm.settings
	sm.mu.RUnlock()
	if cached != nil {
		return *cached
	}

	if err := sm.Load(ctx); err != nil {
		log.Printf("[settings] load error: %v", err)
		return models.DefaultAppSettings()
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return *sm.settings
}

// Save normalizes and persists s
func (sm *SettingsManager) Save(ctx context.Context, s models.AppSettings) error {
	s = s.Normalize()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.kv.Set(ctx, store.KeySettings, string(data)); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	sm.settings = &s
	return nil
}

// Update applies fn to the current settings and saves the result
func (sm *SettingsManager) Update(ctx context.Context, fn func(*models.AppSettings)) (models.AppSettings, error) {
	s := sm.Get(ctx)
	fn(&s)
	if err := sm.Save(ctx, s); err != nil {
		return models.AppSettings{}, err
	}
	return sm.Get(ctx), nil
}

// Export returns the settings object for backup
func (sm *SettingsManager) Export(ctx context.Context) ([]byte, error) {
	return json.MarshalIndent(sm.Get(ctx), "", "  ")
}

// Import validates and stores a settings backup
func (sm *SettingsManager) Import(ctx context.Context, data []byte) error {
	var imported models.AppSettings
	if err := json.Unmarshal(data, &imported); err != nil {
		return fmt.Errorf("invalid settings file: %w", err)
	}
	if err := sm.Save(ctx, imported); err != nil {
		return err
	}
	log.Printf("[settings] imported settings (polling every %ds)", imported.Normalize().PollingInterval)
	return nil
}
