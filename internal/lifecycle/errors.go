package lifecycle

import "errors"

var (
	// ErrNotFound reports a project, marker or folder that should exist and
	// does not.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthor is returned when an author-only action is requested by
	// another datasite.
	ErrNotAuthor = errors.New("not the project author")

	// ErrExists is returned by Invite when the project name is taken.
	ErrExists = errors.New("project already exists")
)
