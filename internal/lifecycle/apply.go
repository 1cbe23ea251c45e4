package lifecycle

import (
	"fmt"

	"github.com/roach88/fedreduce/internal/descriptor"
)

// Applied pairs a transition with the error that stopped it, if any.
type Applied struct {
	Transition Transition
	Err        error
}

// Apply executes plan against the tree rooted at root.
//
// Transitions are independent: a failing op stops the rest of its own
// transition and is reported, then Apply moves on. Every op is idempotent,
// so a failed transition is simply planned again next pass.
func Apply(root string, plan []Transition) []Applied {
	out := make([]Applied, 0, len(plan))
	for _, t := range plan {
		var err error
		for _, op := range t.Ops {
			if err = applyOp(root, op); err != nil {
				err = fmt.Errorf("%s: %w", t, err)
				break
			}
		}
		out = append(out, Applied{Transition: t, Err: err})
	}
	return out
}

func applyOp(root string, op Op) error {
	src := abs(root, op.Src)
	switch op.Kind {
	case OpMergeDatasites:
		if !exists(src) && op.Optional {
			return nil
		}
		_, err := descriptor.MergeDatasites(src, op.IDs)
		return err
	case OpMoveTree:
		if op.Optional && !exists(src) {
			return nil
		}
		return moveTree(src, abs(root, op.Dst))
	case OpMoveFile:
		return moveFile(src, abs(root, op.Dst), op.Optional)
	case OpCopyTree:
		return copyTree(src, abs(root, op.Dst))
	default:
		return fmt.Errorf("unknown op %q", op.Kind)
	}
}
