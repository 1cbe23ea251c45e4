package lifecycle

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/fedreduce/internal/datasite"
	"github.com/roach88/fedreduce/internal/descriptor"
	"github.com/roach88/fedreduce/internal/ledger"
)

// EnsureLayout creates the local identity's application folders and makes
// the public one world-readable.
func EnsureLayout(client *datasite.Client, perms datasite.PermissionSetter) error {
	me := client.Email
	for _, rel := range []string{
		PrivateApp(me),
		path.Join(PublicApp(me), string(StateInvite)),
		path.Join(PublicApp(me), string(StateJoin)),
	} {
		if err := os.MkdirAll(abs(client.SyncFolder, rel), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", rel, err)
		}
	}
	if err := perms.Ensure(abs(client.SyncFolder, PublicApp(me)), datasite.MineWithPublicRead(me)); err != nil {
		return fmt.Errorf("public folder permission: %w", err)
	}
	return nil
}

// ParseSource extracts author and project from a project reference. It
// accepts "author/project" and any path or URL whose last identity segment
// is the author and whose last segment is the project, such as
// "/datasites/alice@x/fedreduce/invite/sum".
func ParseSource(source string) (author, project string, err error) {
	clean := strings.Trim(filepath.ToSlash(strings.TrimSpace(source)), "/")
	project = path.Base(clean)
	project = strings.TrimSuffix(strings.TrimSuffix(project, MarkerExt), ".yaml")
	author = datasite.Normalize(datasite.Extract(path.Dir(clean)))
	if author == "" || project == "" || project == "." || datasite.IsIdentity(project) {
		return "", "", fmt.Errorf("%q does not name <author>/<project>", source)
	}
	return author, project, nil
}

// Join creates the local identity's join marker for author's project. It is
// a no-op when a marker already exists in any state.
func Join(client *datasite.Client, author, project string) (string, error) {
	me := client.Email
	for _, st := range []State{StateJoin, StateRunning, StateComplete} {
		if p := abs(client.SyncFolder, MarkerPath(me, st, author, project)); exists(p) {
			return p, nil
		}
	}
	marker := abs(client.SyncFolder, MarkerPath(me, StateJoin, author, project))
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		return "", fmt.Errorf("join %s/%s: %w", author, project, err)
	}
	f, err := os.OpenFile(marker, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("join %s/%s: %w", author, project, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("join %s/%s: %w", author, project, err)
	}
	return marker, nil
}

// Leave withdraws a pending join. Only markers still in the join state can
// be withdrawn.
func Leave(client *datasite.Client, author, project string) error {
	me := client.Email
	marker := abs(client.SyncFolder, MarkerPath(me, StateJoin, author, project))
	if !exists(marker) {
		return fmt.Errorf("leave %s/%s: no pending join: %w", author, project, ErrNotFound)
	}
	if err := os.Remove(marker); err != nil {
		return fmt.Errorf("leave %s/%s: %w", author, project, err)
	}
	_ = os.Remove(abs(client.SyncFolder, LogPath(me, StateJoin, author, project)))
	removeIfEmpty(filepath.Dir(marker))
	return nil
}

// Role is the local identity's relation to a listed project.
type Role string

const (
	RoleAuthor      Role = "author"
	RoleParticipant Role = "participant"
)

// Listing is one row of List.
type Listing struct {
	Role    Role   `json:"role"`
	Author  string `json:"author"`
	Project string `json:"project"`
	State   State  `json:"state"`
	Source  string `json:"source"`
}

// List returns the local identity's projects: those it authored and those
// it holds a join marker for.
func List(s Snapshot) []Listing {
	var out []Listing
	for _, p := range s.Projects {
		if p.Author != s.Identity {
			continue
		}
		out = append(out, Listing{
			Role: RoleAuthor, Author: p.Author, Project: p.Name, State: p.Current(),
			Source: PublicProject(p.Author, p.Current(), p.Name),
		})
	}
	for _, m := range s.Markers {
		if m.Participant != s.Identity {
			continue
		}
		st := StateRunning
		if a := s.project(m.Author, m.Project); a != nil {
			st = a.Current()
		}
		out = append(out, Listing{
			Role: RoleParticipant, Author: m.Author, Project: m.Project, State: m.State,
			Source: PublicProject(m.Author, st, m.Project),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Author != out[j].Author {
			return out[i].Author < out[j].Author
		}
		if out[i].Project != out[j].Project {
			return out[i].Project < out[j].Project
		}
		return out[i].Role < out[j].Role
	})
	return out
}

// Invite publishes the descriptor at src as a new project of the local
// identity. The author is set to the local identity and a uid is assigned
// when missing. Files named under code are copied from beside src.
// It returns the published descriptor path.
func Invite(client *datasite.Client, src string, ids ledger.IDGenerator) (string, error) {
	fields, err := descriptor.Fields(src)
	if err != nil {
		return "", fmt.Errorf("invite: %w", err)
	}
	name := fields["project"]
	if name == "" || strings.ContainsAny(name, `/\`) || datasite.IsIdentity(name) {
		return "", fmt.Errorf("invite: %q is not a valid project name", name)
	}

	me := client.Email
	for _, st := range []State{StateInvite, StateRunning, StateComplete} {
		if exists(abs(client.SyncFolder, PublicProject(me, st, name))) {
			return "", fmt.Errorf("invite %s: %w", name, ErrExists)
		}
	}

	dir := abs(client.SyncFolder, PublicProject(me, StateInvite, name))
	staging := stagingPath(dir)
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("invite %s: %w", name, err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("invite %s: %w", name, err)
	}
	cleanup := func(err error) (string, error) {
		_ = os.RemoveAll(staging)
		return "", fmt.Errorf("invite %s: %w", name, err)
	}

	staged := filepath.Join(staging, name+".yaml")
	if err := copyFile(src, staged); err != nil {
		return cleanup(err)
	}
	set := map[string]string{"author": me}
	if fields["uid"] == "" {
		set["uid"] = ids.Generate()
	}
	if err := descriptor.SetFields(staged, set); err != nil {
		return cleanup(err)
	}
	proj, err := descriptor.Load(staged)
	if err != nil {
		return cleanup(err)
	}
	for _, code := range proj.Code {
		if filepath.IsAbs(code) || strings.HasPrefix(filepath.Clean(code), "..") {
			return cleanup(fmt.Errorf("code file %q escapes the project", code))
		}
		target := filepath.Join(staging, code)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return cleanup(err)
		}
		if err := copyFile(filepath.Join(filepath.Dir(src), code), target); err != nil {
			return cleanup(err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		return cleanup(err)
	}
	return filepath.Join(dir, name+".yaml"), nil
}
