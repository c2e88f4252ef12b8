package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cronos/internal/browser"
)

// Metadata is the persisted description of a session.
type Metadata struct {
	PhoneNumber string `json:"phone_number"`
	Proxy       string `json:"proxy"`
	UseVPN      bool   `json:"use_vpn"`
}

// LoadMetadata reads a metadata file. ok is false when none exists.
func LoadMetadata(path string) (md Metadata, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, err
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, false, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return md, true, nil
}

// SaveMetadata writes a metadata file, creating its directory.
func SaveMetadata(path string, md Metadata) error {
	return writeJSON(path, md, 0o644)
}

// LoadCookies reads a cookie file. ok is false when none exists.
func LoadCookies(path string) (cookies []browser.Cookie, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, false, fmt.Errorf("parse cookies %s: %w", path, err)
	}
	return cookies, true, nil
}

// SaveCookies writes a cookie file readable only by the owner.
func SaveCookies(path string, cookies []browser.Cookie) error {
	if cookies == nil {
		cookies = []browser.Cookie{}
	}
	return writeJSON(path, cookies, 0o600)
}

func writeJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}
