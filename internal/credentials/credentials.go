package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Credentials is an Easee account login pair.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Provider supplies account credentials on demand.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticProvider returns a fixed credential pair, typically from env.
type StaticProvider struct {
	creds Credentials
}

// NewStaticProvider creates a provider around fixed credentials.
func NewStaticProvider(username, password string) *StaticProvider {
	return &StaticProvider{creds: Credentials{Username: username, Password: password}}
}

func (p *StaticProvider) Credentials(ctx context.Context) (Credentials, error) {
	if p.creds.Username == "" || p.creds.Password == "" {
		return Credentials{}, fmt.Errorf("credentials not configured")
	}
	return p.creds, nil
}

// FileProvider reads a JSON credentials file on every call, so the file can be
// rotated without restarting the process.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider reading the given JSON file.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Credentials(ctx context.Context) (Credentials, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials file: %w", err)
	}
	if creds.Username == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf("credentials file missing username or password")
	}

	return creds, nil
}
