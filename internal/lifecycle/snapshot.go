package lifecycle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/fedreduce/internal/datasite"
	"github.com/roach88/fedreduce/internal/descriptor"
	"github.com/roach88/fedreduce/internal/tmpl"
)

// Snapshot is everything the planner knows about the tree. It is plain
// data so plans can be computed, and golden-tested, without a filesystem.
type Snapshot struct {
	Identity string    `json:"identity"`
	Projects []Project `json:"projects"`
	Markers  []Marker  `json:"markers"`
	Copies   []Copy    `json:"copies"`
}

// Project is a published project folder, possibly present in several
// states at once after an interrupted move.
type Project struct {
	Author string  `json:"author"`
	Name   string  `json:"name"`
	States []State `json:"states"`
	// Descriptors maps each present state to its descriptor path.
	Descriptors map[State]string `json:"descriptors"`
	// Datasites is the ring of the most advanced descriptor.
	Datasites []string `json:"datasites,omitempty"`
	// CompleteReady is evaluated only for the local identity's own
	// running projects.
	CompleteReady bool   `json:"complete_ready,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Has reports whether the project has a folder in state s.
func (p Project) Has(s State) bool {
	for _, st := range p.States {
		if st == s {
			return true
		}
	}
	return false
}

// Current is the most advanced state present.
func (p Project) Current() State {
	var cur State
	for _, st := range p.States {
		if st.rank() > cur.rank() {
			cur = st
		}
	}
	return cur
}

// Marker is a join marker: Participant asked to take part in Author's
// Project and is currently in State.
type Marker struct {
	Participant string `json:"participant"`
	Author      string `json:"author"`
	Project     string `json:"project"`
	State       State  `json:"state"`
}

// Copy is a project replicated into the local identity's private tree.
type Copy struct {
	Project string `json:"project"`
	State   State  `json:"state"`
	Author  string `json:"author,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s Snapshot) project(author, name string) *Project {
	for i := range s.Projects {
		if s.Projects[i].Author == author && s.Projects[i].Name == name {
			return &s.Projects[i]
		}
	}
	return nil
}

func (s Snapshot) marker(participant, author, project string, st State) bool {
	for _, m := range s.Markers {
		if m.Participant == participant && m.Author == author && m.Project == project && m.State == st {
			return true
		}
	}
	return false
}

func (s Snapshot) copyOf(project string, st State) bool {
	for _, c := range s.Copies {
		if c.Project == project && c.State == st {
			return true
		}
	}
	return false
}

// joiners lists the participants with a join or running marker for
// author's project.
func (s Snapshot) joiners(author, project string) []string {
	var ids []string
	for _, m := range s.Markers {
		if m.Author == author && m.Project == project && (m.State == StateJoin || m.State == StateRunning) {
			ids = append(ids, m.Participant)
		}
	}
	return datasite.Dedupe(ids)
}

// Observe scans the tree visible to client.
//
// Unreadable descriptors do not fail the scan: the error is recorded on the
// project or copy and the planner skips what it cannot reason about.
func Observe(client *datasite.Client) (Snapshot, error) {
	snap := Snapshot{Identity: client.Email}

	projects, err := observeProjects(client)
	if err != nil {
		return snap, err
	}
	snap.Projects = projects

	markers, err := observeMarkers(client)
	if err != nil {
		return snap, err
	}
	snap.Markers = markers

	copies, err := observeCopies(client)
	if err != nil {
		return snap, err
	}
	snap.Copies = copies
	return snap, nil
}

func observeProjects(client *datasite.Client) ([]Project, error) {
	matches, err := client.Glob(path.Join("*", "public", AppName, "*", "*", "**", "*.yaml"))
	if err != nil {
		return nil, err
	}

	byKey := map[[2]string]*Project{}
	var order [][2]string
	for _, m := range matches {
		rel, err := client.Rel(m.Path)
		if err != nil {
			continue
		}
		parts := strings.Split(rel, "/")
		// <author>/public/fedreduce/<state>/<project>/...
		st, ok := parseState(parts[3])
		if !ok || st == StateJoin {
			continue
		}
		author, name := datasite.Normalize(parts[0]), parts[4]
		if datasite.IsIdentity(name) {
			// A marker directory, not a project.
			continue
		}
		key := [2]string{author, name}
		p := byKey[key]
		if p == nil {
			p = &Project{Author: author, Name: name, Descriptors: map[State]string{}}
			byKey[key] = p
			order = append(order, key)
		}
		if _, seen := p.Descriptors[st]; seen {
			continue
		}
		found, err := descriptor.Find(abs(client.SyncFolder, path.Join(parts[:5]...)))
		if err != nil {
			continue
		}
		if rel, err := client.Rel(found); err == nil {
			p.Descriptors[st] = rel
			p.States = append(p.States, st)
		}
	}

	out := make([]Project, 0, len(order))
	for _, key := range order {
		p := byKey[key]
		sort.Slice(p.States, func(i, j int) bool { return p.States[i].rank() < p.States[j].rank() })
		loadFacts(client, p)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Author != out[j].Author {
			return out[i].Author < out[j].Author
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// loadFacts fills the ring and, for the local identity's running projects,
// evaluates the completion pipe.
func loadFacts(client *datasite.Client, p *Project) {
	cur := p.Current()
	proj, err := descriptor.Load(abs(client.SyncFolder, p.Descriptors[cur]))
	if err != nil {
		p.Error = err.Error()
		return
	}
	p.Datasites = proj.Workflow.Datasites
	if p.Author != client.Email || !p.Has(StateRunning) || proj.Complete == nil {
		return
	}
	ready, err := completionReady(client.SyncFolder, client.Email, proj)
	if err != nil {
		p.Error = err.Error()
		return
	}
	p.CompleteReady = ready
}

// completionReady resolves the descriptor's complete pipe and checks it.
func completionReady(root, me string, proj *descriptor.Project) (bool, error) {
	vars := tmpl.Vars{
		tmpl.VarProject:  proj.Name,
		tmpl.VarAuthor:   proj.Author,
		tmpl.VarDatasite: me,
	}
	if ring := proj.Workflow.Datasites; len(ring) > 0 {
		vars[tmpl.VarFirstDatasite] = ring[0]
		vars[tmpl.VarLastDatasite] = ring[len(ring)-1]
		vars[tmpl.VarNumDatasites] = len(ring)
	}
	pp, err := proj.Complete.Resolve(root, vars)
	if err != nil {
		return false, fmt.Errorf("complete: %w", err)
	}
	return pp.Ready(), nil
}

func observeMarkers(client *datasite.Client) ([]Marker, error) {
	matches, err := client.Glob(path.Join("*", "public", AppName, "*", "*", "*"+MarkerExt))
	if err != nil {
		return nil, err
	}
	var out []Marker
	for _, m := range matches {
		mk, ok := parseMarker(client, m.Path)
		if ok {
			out = append(out, mk)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Participant != b.Participant {
			return a.Participant < b.Participant
		}
		if a.Author != b.Author {
			return a.Author < b.Author
		}
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		return a.State.rank() < b.State.rank()
	})
	return out, nil
}

func parseMarker(client *datasite.Client, p string) (Marker, bool) {
	rel, err := client.Rel(p)
	if err != nil {
		return Marker{}, false
	}
	parts := strings.Split(rel, "/")
	if len(parts) != 6 {
		return Marker{}, false
	}
	st, ok := parseState(parts[3])
	if !ok || st == StateInvite {
		return Marker{}, false
	}
	author := datasite.Normalize(parts[4])
	if !datasite.IsIdentity(author) {
		return Marker{}, false
	}
	return Marker{
		Participant: datasite.Normalize(parts[0]),
		Author:      author,
		Project:     strings.TrimSuffix(parts[5], MarkerExt),
		State:       st,
	}, true
}

func observeCopies(client *datasite.Client) ([]Copy, error) {
	var out []Copy
	for _, st := range []State{StateRunning, StateComplete} {
		dir := abs(client.SyncFolder, path.Join(PrivateApp(client.Email), string(st)))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("list private %s projects: %w", st, err)
		}
		for _, e := range entries {
			if !e.IsDir() || isStaging(e.Name()) {
				continue
			}
			c := Copy{Project: e.Name(), State: st}
			proj, err := loadCopy(filepath.Join(dir, e.Name()))
			if err != nil {
				c.Error = err.Error()
			} else {
				c.Author = proj.Author
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func loadCopy(dir string) (*descriptor.Project, error) {
	p, err := descriptor.Find(dir)
	if err != nil {
		return nil, err
	}
	return descriptor.Load(p)
}
