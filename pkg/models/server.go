package models

import "strings"

// StoredServer is a saved Unraid server entry. Entries are replaced whole,
// never edited field by field.
type StoredServer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ServerAddress string `json:"serverAddress"`
	APIKey        string `json:"apiKey"`
}

// Credentials returns the address/key pair used to reach the server
func (s StoredServer) Credentials() Credentials {
	return Credentials{ServerAddress: s.ServerAddress, APIKey: s.APIKey}
}

// Redacted returns a copy safe to send to the UI or write to logs
func (s StoredServer) Redacted() StoredServer {
	s.APIKey = MaskKey(s.APIKey)
	return s
}

// Credentials is the address and API key of one server
type Credentials struct {
	ServerAddress string `json:"serverAddress"`
	APIKey        string `json:"apiKey"`
}

// Trimmed returns the credentials with surrounding whitespace removed
func (c Credentials) Trimmed() Credentials {
	return Credentials{
		ServerAddress: strings.TrimSpace(c.ServerAddress),
		APIKey:        strings.TrimSpace(c.APIKey),
	}
}

// Complete reports whether both fields are non-empty after trimming
func (c Credentials) Complete() bool {
	t := c.Trimmed()
	return t.ServerAddress != "" && t.APIKey != ""
}

// SessionState tags the Session union
type SessionState string

const (
	SessionLoggedOut SessionState = "logged_out"
	SessionLoggedIn  SessionState = "logged_in"
)

// Session is either logged out, or logged in with exactly one set of credentials.
// Build it with LoggedOut or LoggedIn so a half-set session cannot exist.
type Session struct {
	State       SessionState `json:"state"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

// LoggedOut returns the unauthenticated session
func LoggedOut() Session {
	return Session{State: SessionLoggedOut}
}

// LoggedIn returns a session bound to c
func LoggedIn(c Credentials) Session {
	return Session{State: SessionLoggedIn, Credentials: &c}
}

// Active reports whether the session carries credentials
func (s Session) Active() bool {
	return s.State == SessionLoggedIn && s.Credentials != nil
}

// MaskKey hides all but the last four characters of a secret
func MaskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
