// Package pipe provides scalar read/write/ready capabilities used as step
// inputs and outputs.
//
// A pipe holds exactly one integer. StaticPipe keeps it in memory; FilePipe
// keeps it as the decimal text of a single file, which is how one datasite
// hands a value to the next through the sync layer.
package pipe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned by FilePipe.Read when the backing file is absent.
	ErrNotFound = errors.New("pipe: not found")

	// ErrInvalidFormat is returned by FilePipe.Read when the content is not
	// a decimal integer.
	ErrInvalidFormat = errors.New("pipe: invalid format")
)

// Pipe is a single-value capability.
type Pipe interface {
	Read() (int64, error)
	Write(v int64) error
	// Ready reports whether Read can be attempted. It does not validate content.
	Ready() bool
}

// StaticPipe is an in-memory pipe. It is always ready.
type StaticPipe struct {
	value int64
}

// NewStaticPipe returns a pipe whose initial value is v.
func NewStaticPipe(v int64) *StaticPipe {
	return &StaticPipe{value: v}
}

func (p *StaticPipe) Read() (int64, error) { return p.value, nil }

func (p *StaticPipe) Write(v int64) error {
	p.value = v
	return nil
}

func (p *StaticPipe) Ready() bool { return true }

func (p *StaticPipe) String() string { return fmt.Sprintf("StaticPipe(%d)", p.value) }

// FilePipe stores its value as decimal text in a single file.
type FilePipe struct {
	Path string
}

// NewFilePipe returns a pipe backed by path. The file is not touched.
func NewFilePipe(path string) *FilePipe {
	return &FilePipe{Path: path}
}

// Read parses the file content as a base-10 integer. Surrounding whitespace
// is ignored.
func (p *FilePipe) Read() (int64, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, p.Path)
		}
		return 0, fmt.Errorf("read %s: %w", p.Path, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q", ErrInvalidFormat, p.Path, truncate(string(data), 32))
	}
	return v, nil
}

// Write replaces the file content with the decimal text of v, creating
// parent directories as needed.
func (p *FilePipe) Write(v int64) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", p.Path, err)
	}
	if err := os.WriteFile(p.Path, []byte(strconv.FormatInt(v, 10)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p.Path, err)
	}
	return nil
}

// Ready reports whether the backing file exists.
func (p *FilePipe) Ready() bool {
	info, err := os.Stat(p.Path)
	return err == nil && !info.IsDir()
}

func (p *FilePipe) String() string { return fmt.Sprintf("FilePipe(%q)", p.Path) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
