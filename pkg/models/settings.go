package models

// AppSettings holds the user preferences stored under the "settings" key
type AppSettings struct {
	// PollingInterval is the dashboard refresh interval in seconds
	PollingInterval int    `json:"pollingInterval"`
	Theme           string `json:"theme"`
	Language        string `json:"language"`
	DemoMode        bool   `json:"demoMode"`
}

const (
	MinPollingInterval     = 5
	DefaultPollingInterval = 30
)

// DefaultAppSettings returns AppSettings with sensible defaults
func DefaultAppSettings() AppSettings {
	return AppSettings{
		PollingInterval: DefaultPollingInterval,
		Theme:           "system",
		Language:        "en",
	}
}

// Normalize fills missing fields with defaults and clamps the polling interval
func (s AppSettings) Normalize() AppSettings {
	d := DefaultAppSettings()
	if s.PollingInterval == 0 {
		s.PollingInterval = d.PollingInterval
	}
	if s.PollingInterval < MinPollingInterval {
		s.PollingInterval = MinPollingInterval
	}
	if s.Theme == "" {
		s.Theme = d.Theme
	}
	if s.Language == "" {
		s.Language = d.Language
	}
	return s
}
