package injector

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/YunHsiao/crysknife/pkg/errors"
)

// Standalone source files living alongside the patch artifacts are
// whole new files the plugin contributes to the engine tree. Register
// places them (symlink or copy per settings), unregister removes
// them. Patch application/clearing for guarded files is handled by
// the main pipeline; placement only covers whole files.

// standaloneFiles lists non-artifact files under the patch root,
// relative slash paths, sorted by the store walk order.
func (in *Injector) standaloneFiles() ([]string, error) {
	var files []string
	root := in.store.Root()
	if _, err := in.fs.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read patch root %s", root)
	}

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := in.fs.ReadDir(dir)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", dir)
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			if strings.Contains(entry.Name(), ".patch") {
				continue
			}
			rel, err := filepath.Rel(root, full)
			if err != nil {
				continue
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return files, nil
}

// place runs the placement half of register/unregister.
func (in *Injector) place(ctx context.Context, action Action, report *Report) error {
	files, err := in.standaloneFiles()
	if err != nil {
		return err
	}

	for _, rel := range files {
		if ctx.Err() != nil {
			break
		}
		if !in.inScope(rel) {
			continue
		}

		decision, err := in.engine.Evaluate(rel, in.facts(rel))
		if err != nil {
			return err
		}
		if decision.Skip {
			report.add(Result{Target: rel, Outcome: OutcomeSkipped})
			continue
		}

		var res Result
		if action == ActionRegister {
			res = in.placeFile(rel, decision.Path)
		} else {
			res = in.removeFile(rel, decision.Path)
		}
		report.add(res)
	}
	return nil
}

func (in *Injector) placeFile(rel, mapped string) Result {
	src := filepath.Join(in.store.Root(), filepath.FromSlash(rel))
	dst := in.destPath(mapped)

	if err := in.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return Result{Target: rel, Outcome: OutcomeFailed,
			Err: errors.Wrapf(err, errors.ErrDirCreate, "failed to create directory for %s", mapped)}
	}

	if _, err := in.fs.Lstat(dst); err == nil {
		if !in.set.Force {
			return Result{Target: rel, Outcome: OutcomeUpToDate}
		}
		if err := in.fs.Remove(dst); err != nil {
			return Result{Target: rel, Outcome: OutcomeFailed,
				Err: errors.Wrapf(err, errors.ErrFileWrite, "failed to replace %s", mapped)}
		}
	}

	if in.set.Link {
		if err := in.fs.Symlink(src, dst); err != nil {
			return Result{Target: rel, Outcome: OutcomeFailed,
				Err: errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to link %s", mapped)}
		}
		return Result{Target: rel, Outcome: OutcomePlaced}
	}

	data, err := in.fs.ReadFile(src)
	if err != nil {
		return Result{Target: rel, Outcome: OutcomeFailed,
			Err: errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", rel)}
	}
	if err := in.fs.WriteFile(dst, data, 0644); err != nil {
		return Result{Target: rel, Outcome: OutcomeFailed,
			Err: errors.Wrapf(err, errors.ErrFileWrite, "failed to copy %s", mapped)}
	}
	return Result{Target: rel, Outcome: OutcomePlaced}
}

func (in *Injector) removeFile(rel, mapped string) Result {
	dst := in.destPath(mapped)
	if _, err := in.fs.Lstat(dst); err != nil {
		if os.IsNotExist(err) {
			return Result{Target: rel, Outcome: OutcomeUpToDate}
		}
		return Result{Target: rel, Outcome: OutcomeFailed,
			Err: errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", mapped)}
	}
	if err := in.fs.Remove(dst); err != nil {
		return Result{Target: rel, Outcome: OutcomeFailed,
			Err: errors.Wrapf(err, errors.ErrFileWrite, "failed to remove %s", mapped)}
	}
	return Result{Target: rel, Outcome: OutcomeRemoved}
}
