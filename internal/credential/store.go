package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store loads and atomically persists on-disk token documents.
type Store struct{}

// NewStore returns a Store. It holds no state; it groups Load and Save as methods
// rather than free functions.
func NewStore() *Store { return &Store{} }

// Load reads a token document from path.
func (s *Store) Load(path string) (TokenDocument, error) {
	var doc TokenDocument
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("credential: malformed token document %s: %w", path, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil {
		known := map[string]bool{
			"accessToken": true, "refreshToken": true, "clientId": true, "clientSecret": true,
			"startUrl": true, "profileArn": true, "expiresAt": true, "expire": true, "region": true,
			"authMethod": true, "clientIdHash": true, "lastRefresh": true,
		}
		doc.Unknown = map[string]json.RawMessage{}
		for k, v := range fields {
			if !known[k] {
				doc.Unknown[k] = v
			}
		}
	}
	return doc, nil
}

// Save writes doc to path atomically: write to a temp file in the same directory,
// then rename over the target. Unknown fields captured at load time are merged back in
// so a round trip never drops data an external login helper wrote.
func (s *Store) Save(path string, doc TokenDocument) error {
	merged := map[string]any{
		"accessToken":  doc.AccessToken,
		"refreshToken": doc.RefreshToken,
		"region":       doc.Region,
		"authMethod":   doc.AuthMethod,
		"expiresAt":    doc.ExpiresAt,
	}
	if doc.ClientID != "" {
		merged["clientId"] = doc.ClientID
	}
	if doc.ClientSecret != "" {
		merged["clientSecret"] = doc.ClientSecret
	}
	if doc.StartURL != "" {
		merged["startUrl"] = doc.StartURL
	}
	if doc.ProfileArn != "" {
		merged["profileArn"] = doc.ProfileArn
	}
	if doc.ClientIDHash != "" {
		merged["clientIdHash"] = doc.ClientIDHash
	}
	if doc.LastRefresh != "" {
		merged["lastRefresh"] = doc.LastRefresh
	}
	for k, v := range doc.Unknown {
		merged[k] = v
	}

	payload, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
