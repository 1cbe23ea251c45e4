package datasite

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// PermissionFile is the name of the per-directory permission file the sync
// service reads.
const PermissionFile = "_.syftperm"

// Everyone is the wildcard identity for public access.
const Everyone = "GLOBAL"

// ErrPermissionDenied wraps failures to write a permission file.
var ErrPermissionDenied = errors.New("permission denied")

// Permission lists the identities granted each right on a directory.
type Permission struct {
	Admin    []string `json:"admin"`
	Read     []string `json:"read"`
	Write    []string `json:"write"`
	Terminal bool     `json:"terminal"`
}

// MineWithPublicRead grants owner full control and everyone read access.
func MineWithPublicRead(owner string) Permission {
	return Permission{
		Admin: []string{owner},
		Read:  []string{owner, Everyone},
		Write: []string{owner},
	}
}

// Shared grants every identity in ids admin, read and write.
func Shared(ids ...string) Permission {
	ids = Dedupe(ids)
	return Permission{Admin: ids, Read: ids, Write: ids}
}

// PermissionSetter applies a permission to a directory.
type PermissionSetter interface {
	Ensure(dir string, perm Permission) error
}

// FilePermissions writes PermissionFile into the target directory.
type FilePermissions struct{}

// Ensure writes perm to dir/_.syftperm, creating dir if needed. It is a
// no-op when an identical file is already present.
func (FilePermissions) Ensure(dir string, perm Permission) error {
	data, err := json.MarshalIndent(perm, "", "  ")
	if err != nil {
		return fmt.Errorf("encode permission: %w", err)
	}
	target := filepath.Join(dir, PermissionFile)
	if existing, err := os.ReadFile(target); err == nil && string(existing) == string(data) {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return permissionError(dir, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return permissionError(dir, err)
	}
	return nil
}

// ReadPermission loads the permission file in dir.
func ReadPermission(dir string) (Permission, error) {
	var p Permission
	data, err := os.ReadFile(filepath.Join(dir, PermissionFile))
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode permission in %s: %w", dir, err)
	}
	return p, nil
}

func permissionError(dir string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, dir, err)
	}
	return fmt.Errorf("set permission on %s: %w", dir, err)
}
