package lifecycle

import (
	"fmt"
	"slices"
)

// OpKind names a filesystem side effect.
type OpKind string

const (
	// OpMergeDatasites unions IDs into the ring of the descriptor at Src.
	OpMergeDatasites OpKind = "merge_datasites"
	// OpMoveTree relocates the directory Src to Dst.
	OpMoveTree OpKind = "move_tree"
	// OpMoveFile relocates the file Src to Dst.
	OpMoveFile OpKind = "move_file"
	// OpCopyTree replaces Dst with a copy of Src.
	OpCopyTree OpKind = "copy_tree"
)

// Op is one side effect. Paths are relative to the sync folder.
type Op struct {
	Kind OpKind   `json:"kind"`
	Src  string   `json:"src"`
	Dst  string   `json:"dst,omitempty"`
	IDs  []string `json:"ids,omitempty"`
	// Optional ops succeed when Src is already gone.
	Optional bool `json:"optional,omitempty"`
}

// Kind classifies a transition.
type Kind string

const (
	// KindStart moves the author's project from invite to running.
	KindStart Kind = "start"
	// KindJoin moves a participant's marker to running and replicates the
	// project into its private tree.
	KindJoin Kind = "join"
	// KindReplicate gives the author, listed in its own ring, a private copy.
	KindReplicate Kind = "replicate"
	// KindComplete moves the author's published project to complete.
	KindComplete Kind = "complete"
	// KindCompleteLocal moves a participant's marker and private copy to
	// complete once the author has published completion.
	KindCompleteLocal Kind = "complete_local"
)

// Transition is a planned state change of one project.
type Transition struct {
	Kind    Kind   `json:"kind"`
	Author  string `json:"author"`
	Project string `json:"project"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	Ops     []Op   `json:"ops"`
}

func (t Transition) String() string {
	return fmt.Sprintf("%s %s/%s %s->%s", t.Kind, t.Author, t.Project, t.From, t.To)
}

// Plan computes the transitions due in s. It performs no I/O.
//
// Author side, per own project:
//   - invite -> running once any join marker targets it, or to finish an
//     interrupted move when both folders exist;
//   - running -> complete when the completion pipe is ready, or to finish an
//     interrupted move;
//   - otherwise, a private copy when the author is in its own ring.
//
// Participant side, per own marker:
//   - join -> running when the author's running folder exists;
//   - running -> complete when the author's complete folder exists;
//   - join -> complete when the author finished without ever being seen
//     running, so the marker does not stay pending.
func Plan(s Snapshot) []Transition {
	me := s.Identity
	var out []Transition

	for _, p := range s.Projects {
		if p.Author != me {
			continue
		}
		switch {
		case p.Has(StateInvite):
			joiners := s.joiners(me, p.Name)
			if len(joiners) > 0 || p.Has(StateRunning) {
				out = append(out, startTransition(p, joiners))
			}
		case p.Has(StateRunning) && (p.CompleteReady || p.Has(StateComplete)):
			out = append(out, completeTransition(s, p))
		case p.Has(StateRunning) && slices.Contains(p.Datasites, me) &&
			!s.copyOf(p.Name, StateRunning) && !s.copyOf(p.Name, StateComplete):
			out = append(out, Transition{
				Kind: KindReplicate, Author: me, Project: p.Name,
				From: StateRunning, To: StateRunning,
				Ops: []Op{{
					Kind: OpCopyTree,
					Src:  PublicProject(me, StateRunning, p.Name),
					Dst:  PrivateProject(me, StateRunning, p.Name),
				}},
			})
		}
	}

	for _, m := range s.Markers {
		if m.Participant != me {
			continue
		}
		a := s.project(m.Author, m.Project)
		if a == nil {
			continue
		}
		switch {
		case m.State == StateJoin && a.Has(StateRunning) && !a.Has(StateInvite):
			out = append(out, joinTransition(me, m))
		case m.State == StateRunning && a.Has(StateComplete) && !authorCompleting(me, a):
			out = append(out, completeLocalTransition(s, me, m.Author, m.Project, true))
		case m.State == StateJoin && a.Has(StateComplete) && !a.Has(StateRunning) && !a.Has(StateInvite):
			out = append(out, missedTransition(me, m))
		}
	}

	// Private copies without a running marker: the author's own copy after
	// an interrupted completion.
	for _, c := range s.Copies {
		if c.State != StateRunning || c.Author == "" || s.marker(me, c.Author, c.Project, StateRunning) {
			continue
		}
		a := s.project(c.Author, c.Project)
		if a == nil || !a.Has(StateComplete) || authorCompleting(me, a) {
			continue
		}
		out = append(out, completeLocalTransition(s, me, c.Author, c.Project, false))
	}
	return out
}

// authorCompleting reports whether the author-side complete transition
// already covers the local copy of a.
func authorCompleting(me string, a *Project) bool {
	return a.Author == me && a.Has(StateRunning)
}

func startTransition(p Project, joiners []string) Transition {
	var ops []Op
	if len(joiners) > 0 {
		ops = append(ops, Op{Kind: OpMergeDatasites, Src: p.Descriptors[StateInvite], IDs: joiners})
	}
	ops = append(ops, Op{
		Kind: OpMoveTree,
		Src:  PublicProject(p.Author, StateInvite, p.Name),
		Dst:  PublicProject(p.Author, StateRunning, p.Name),
	})
	return Transition{Kind: KindStart, Author: p.Author, Project: p.Name, From: StateInvite, To: StateRunning, Ops: ops}
}

func completeTransition(s Snapshot, p Project) Transition {
	me := p.Author
	ops := []Op{
		{Kind: OpMoveTree, Src: PublicProject(me, StateRunning, p.Name), Dst: PublicProject(me, StateComplete, p.Name)},
		{Kind: OpMoveFile, Src: LogPath(me, StateRunning, me, p.Name), Dst: LogPath(me, StateComplete, me, p.Name), Optional: true},
	}
	if s.marker(me, me, p.Name, StateRunning) {
		ops = append(ops, Op{Kind: OpMoveFile, Src: MarkerPath(me, StateRunning, me, p.Name), Dst: MarkerPath(me, StateComplete, me, p.Name)})
	}
	if s.copyOf(p.Name, StateRunning) {
		ops = append(ops, Op{Kind: OpMoveTree, Src: PrivateProject(me, StateRunning, p.Name), Dst: PrivateProject(me, StateComplete, p.Name)})
	}
	return Transition{Kind: KindComplete, Author: me, Project: p.Name, From: StateRunning, To: StateComplete, Ops: ops}
}

func joinTransition(me string, m Marker) Transition {
	return Transition{
		Kind: KindJoin, Author: m.Author, Project: m.Project, From: StateJoin, To: StateRunning,
		Ops: []Op{
			// Replicate first: the marker move is the commit point.
			{Kind: OpCopyTree, Src: PublicProject(m.Author, StateRunning, m.Project), Dst: PrivateProject(me, StateRunning, m.Project)},
			{Kind: OpMoveFile, Src: LogPath(me, StateJoin, m.Author, m.Project), Dst: LogPath(me, StateRunning, m.Author, m.Project), Optional: true},
			{Kind: OpMoveFile, Src: MarkerPath(me, StateJoin, m.Author, m.Project), Dst: MarkerPath(me, StateRunning, m.Author, m.Project)},
		},
	}
}

func completeLocalTransition(s Snapshot, me, author, project string, hasMarker bool) Transition {
	var ops []Op
	if s.copyOf(project, StateRunning) {
		ops = append(ops, Op{Kind: OpMoveTree, Src: PrivateProject(me, StateRunning, project), Dst: PrivateProject(me, StateComplete, project)})
	}
	ops = append(ops, Op{Kind: OpMoveFile, Src: LogPath(me, StateRunning, author, project), Dst: LogPath(me, StateComplete, author, project), Optional: true})
	if hasMarker {
		ops = append(ops, Op{Kind: OpMoveFile, Src: MarkerPath(me, StateRunning, author, project), Dst: MarkerPath(me, StateComplete, author, project)})
	}
	return Transition{Kind: KindCompleteLocal, Author: author, Project: project, From: StateRunning, To: StateComplete, Ops: ops}
}

// missedTransition retires a join marker whose project completed before
// this participant replicated it. There is no private copy to move.
func missedTransition(me string, m Marker) Transition {
	return Transition{
		Kind: KindCompleteLocal, Author: m.Author, Project: m.Project, From: StateJoin, To: StateComplete,
		Ops: []Op{
			{Kind: OpMoveFile, Src: LogPath(me, StateJoin, m.Author, m.Project), Dst: LogPath(me, StateComplete, m.Author, m.Project), Optional: true},
			{Kind: OpMoveFile, Src: MarkerPath(me, StateJoin, m.Author, m.Project), Dst: MarkerPath(me, StateComplete, m.Author, m.Project)},
		},
	}
}

// PlanStart is the explicit author start. It reports false, with no error,
// when the project is already running. A project with neither an invite
// nor a running folder is not startable and fails with ErrNotFound.
func PlanStart(s Snapshot, author, project string) (Transition, bool, error) {
	if author != s.Identity {
		return Transition{}, false, fmt.Errorf("start %s/%s as %s: %w", author, project, s.Identity, ErrNotAuthor)
	}
	p := s.project(author, project)
	if p == nil || (!p.Has(StateInvite) && !p.Has(StateRunning)) {
		return Transition{}, false, fmt.Errorf("start %s/%s: %w", author, project, ErrNotFound)
	}
	if !p.Has(StateInvite) {
		return Transition{}, false, nil
	}
	return startTransition(*p, s.joiners(author, project)), true, nil
}
