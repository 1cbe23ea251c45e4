package lifecycle

import (
	"path"
	"path/filepath"
	"strings"
)

// AppName is the folder name the engine owns inside every datasite.
const AppName = "fedreduce"

const (
	// MarkerExt is appended to a project's descriptor name to form its join
	// marker.
	MarkerExt = ".yaml.join"
	// LogExt names the per-project log kept beside a join marker.
	LogExt = ".log"

	stagingPrefix = ".fedreduce-staging-"
)

// State is a lifecycle folder segment.
type State string

const (
	StateInvite   State = "invite"
	StateJoin     State = "join"
	StateRunning  State = "running"
	StateComplete State = "complete"
)

func (s State) rank() int {
	switch s {
	case StateInvite, StateJoin:
		return 1
	case StateRunning:
		return 2
	case StateComplete:
		return 3
	default:
		return 0
	}
}

func parseState(s string) (State, bool) {
	switch st := State(s); st {
	case StateInvite, StateJoin, StateRunning, StateComplete:
		return st, true
	}
	return "", false
}

// Paths below are slash separated and relative to the sync folder.

// PublicApp is id's world-readable application folder.
func PublicApp(id string) string { return path.Join(id, "public", AppName) }

// PublicProject is the author's published project folder in state s.
func PublicProject(author string, s State, project string) string {
	return path.Join(PublicApp(author), string(s), project)
}

// Descriptor is the conventional descriptor path inside PublicProject.
func Descriptor(author string, s State, project string) string {
	return path.Join(PublicProject(author, s, project), project+".yaml")
}

// MarkerPath is me's join marker for author's project in state s.
func MarkerPath(me string, s State, author, project string) string {
	return path.Join(PublicApp(me), string(s), author, project+MarkerExt)
}

// LogPath is me's per-project log, kept beside the marker.
func LogPath(me string, s State, author, project string) string {
	return path.Join(PublicApp(me), string(s), author, project+LogExt)
}

// PrivateApp is me's private application folder.
func PrivateApp(me string) string { return path.Join(me, AppName) }

// PrivateProject is me's replicated copy of a project in state s.
func PrivateProject(me string, s State, project string) string {
	return path.Join(PrivateApp(me), string(s), project)
}

func abs(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

func stagingPath(dst string) string {
	return filepath.Join(filepath.Dir(dst), stagingPrefix+filepath.Base(dst))
}

func isStaging(name string) bool {
	return strings.HasPrefix(name, stagingPrefix)
}
