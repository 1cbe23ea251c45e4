// Package datasite models the sync-replicated datasite tree this engine
// runs on: the local identity, the shared sync folder, recursive discovery
// over every datasite in it, and the per-directory permission files the
// sync service enforces.
package datasite

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNoIdentity is returned when a client config carries no email.
var ErrNoIdentity = errors.New("datasite: client config has no email")

// Client is the local handle on the sync service: who we are and where the
// synchronised tree lives. Every datasite has a top-level directory named
// after its identity under SyncFolder.
type Client struct {
	Email      string `json:"email"`
	SyncFolder string `json:"sync_folder"`
}

// LoadClient reads a sync client config file (JSON with at least "email"
// and "sync_folder"). Unknown keys are ignored.
func LoadClient(path string) (*Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	var c Client
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse client config %s: %w", path, err)
	}
	if c.SyncFolder == "" {
		return nil, fmt.Errorf("client config %s: sync_folder is required", path)
	}
	return NewClient(c.Email, c.SyncFolder)
}

// NewClient validates and normalises a client handle.
func NewClient(email, syncFolder string) (*Client, error) {
	email = Normalize(email)
	if email == "" {
		return nil, ErrNoIdentity
	}
	if !IsIdentity(email) {
		return nil, fmt.Errorf("datasite: %q is not a valid identity", email)
	}
	abs, err := filepath.Abs(syncFolder)
	if err != nil {
		return nil, fmt.Errorf("datasite: resolve sync folder: %w", err)
	}
	return &Client{Email: email, SyncFolder: abs}, nil
}

// Datasite returns the root directory of identity's datasite.
func (c *Client) Datasite(identity string) string {
	return filepath.Join(c.SyncFolder, identity)
}

// Home returns the local identity's datasite root.
func (c *Client) Home() string {
	return c.Datasite(c.Email)
}

// Rel returns path relative to the sync folder, slash separated.
func (c *Client) Rel(path string) (string, error) {
	rel, err := filepath.Rel(c.SyncFolder, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Datasites lists the identities that currently have a directory in the
// sync folder, sorted.
func (c *Client) Datasites() ([]string, error) {
	entries, err := os.ReadDir(c.SyncFolder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list datasites: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && IsIdentity(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

func sortStrings(s []string) { sort.Strings(s) }
