package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// pluginNamespace seeds the name-based UUIDs derived for plugins whose
// manifest does not declare an id.
var pluginNamespace = uuid.MustParse("5f1c7a0e-3d52-4f0b-9a51-2b8f0f6c9d11")

// Manifest is the on-disk description of one configured plugin instance.
//
//	plugin: card_allowlist
//	id: lobby-cards
//	name: Lobby cards
//	enabled: true
//	config:
//	  cards: "12345678,87654321"
type Manifest struct {
	Plugin  string            `yaml:"plugin"`
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Enabled *bool             `yaml:"enabled"`
	Config  map[string]string `yaml:"config"`
}

func (m Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	m.Plugin = strings.TrimSpace(m.Plugin)
	m.ID = strings.TrimSpace(m.ID)
	m.Name = strings.TrimSpace(m.Name)
	if m.Plugin == "" {
		return Manifest{}, errors.New("parse manifest: missing plugin key")
	}
	return m, nil
}

func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// DeriveID returns a stable identifier for a plugin from its name and
// version, so reader mappings survive reloads.
func DeriveID(name, version string) string {
	return uuid.NewSHA1(pluginNamespace, []byte(name+"@"+version)).String()
}
