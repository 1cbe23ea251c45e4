package lifecycle

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// moveTree relocates the directory src to dst in two phases.
//
// Phase one copies src into a hidden staging directory beside dst and
// verifies it. Phase two removes any destination remnant, renames staging
// onto dst, then deletes src. Re-running after a crash at any point
// converges: a missing src with dst present means the move already
// happened.
func moveTree(src, dst string) error {
	srcOK, dstOK := exists(src), exists(dst)
	staging := stagingPath(dst)
	if !srcOK {
		if dstOK {
			return os.RemoveAll(staging)
		}
		return fmt.Errorf("move %s: %w", src, ErrNotFound)
	}
	if err := publishCopy(src, dst, staging); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("move %s: remove source: %w", src, err)
	}
	return nil
}

// copyTree replaces dst with a verified copy of src.
func copyTree(src, dst string) error {
	if !exists(src) {
		return fmt.Errorf("copy %s: %w", src, ErrNotFound)
	}
	if err := publishCopy(src, dst, stagingPath(dst)); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}

func publishCopy(src, dst, staging string) error {
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clear staging: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := copyDir(src, staging); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	if err := verifyCopy(src, staging); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	// The source wins over whatever a previous run left at dst.
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove destination remnant: %w", err)
	}
	if err := os.Rename(staging, dst); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// moveFile relocates one file the same way. The source's parent directory
// is removed when the move leaves it empty.
func moveFile(src, dst string, optional bool) error {
	srcOK, dstOK := exists(src), exists(dst)
	staging := stagingPath(dst)
	if !srcOK {
		if dstOK || optional {
			_ = os.Remove(staging)
			return nil
		}
		return fmt.Errorf("move %s: %w", src, ErrNotFound)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := copyFile(src, staging); err != nil {
		return fmt.Errorf("move %s: stage: %w", src, err)
	}
	if err := sameSize(src, staging); err != nil {
		return fmt.Errorf("move %s: verify: %w", src, err)
	}
	if err := os.Rename(staging, dst); err != nil {
		return fmt.Errorf("move %s: publish: %w", src, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("move %s: remove source: %w", src, err)
	}
	removeIfEmpty(filepath.Dir(src))
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			if isStaging(d.Name()) {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			return copyFile(p, target)
		default:
			// Symlinks and devices are not part of a project.
			return nil
		}
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// verifyCopy checks every regular file of src exists in dst with the same
// size.
func verifyCopy(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && isStaging(d.Name()) {
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		return sameSize(p, filepath.Join(dst, rel))
	})
}

func sameSize(a, b string) error {
	ia, err := os.Stat(a)
	if err != nil {
		return err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return err
	}
	if ia.Size() != ib.Size() {
		return fmt.Errorf("%s: size %d, copy has %d", a, ia.Size(), ib.Size())
	}
	return nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}
