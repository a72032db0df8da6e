package types

import "time"

type SecurityMode string

const (
	SecurityClearText SecurityMode = "clear_text"
	SecuritySecure    SecurityMode = "secure"
)

// Reader is the configured view of one physical reader.
type Reader struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Enabled      bool         `json:"enabled"`
	SecurityMode SecurityMode `json:"security_mode"`
	LastSeen     time.Time    `json:"last_seen,omitempty"`
}

// PluginMetadata describes a plugin known to the registry.
type PluginMetadata struct {
	ID          string            `json:"id"`
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description,omitempty"`
	Location    string            `json:"location"`
	Enabled     bool              `json:"enabled"`
	Config      map[string]string `json:"config,omitempty"`
}
