package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/YunHsiao/crysknife/pkg/errors"
	"github.com/YunHsiao/crysknife/pkg/guard"
	"github.com/YunHsiao/crysknife/pkg/logging"
	"github.com/YunHsiao/crysknife/pkg/types"
)

const artifactSuffix = ".patch"

// Store persists patch records under a root directory that mirrors
// the target tree's relative structure. The first version of a target
// lives in "<rel>.patch", later versions in "<rel>.patch.1",
// "<rel>.patch.2", and so on.
type Store struct {
	fs     types.FS
	root   string
	logger zerolog.Logger
}

// NewStore creates a store rooted at the given patches directory.
func NewStore(fs types.FS, root string) *Store {
	return &Store{
		fs:     fs,
		root:   root,
		logger: logging.GetLogger("patch.store"),
	}
}

// Root returns the patches root directory.
func (s *Store) Root() string {
	return s.root
}

// artifact is the on-disk TOML shape of one record.
type artifact struct {
	Target    string   `toml:"target"`
	Kind      string   `toml:"kind"`
	Style     string   `toml:"style"`
	Comment   string   `toml:"comment,omitempty"`
	Order     int      `toml:"order"`
	Offset    int      `toml:"offset"`
	Preceding []string `toml:"preceding"`
	Following []string `toml:"following"`
	Body      []string `toml:"body"`
	Stock     []string `toml:"stock,omitempty"`
}

func (s *Store) pathFor(target string, version int) string {
	base := filepath.Join(s.root, filepath.FromSlash(target)) + artifactSuffix
	if version == 0 {
		return base
	}
	return base + "." + strconv.Itoa(version)
}

// Load reads every stored version for a target, creation order
// ascending. A target with no artifacts yields an empty set.
func (s *Store) Load(target string) (*VersionSet, error) {
	set := &VersionSet{Target: target}
	for version := 0; ; version++ {
		path := s.pathFor(target, version)
		data, err := s.fs.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return nil, errors.Wrapf(err, errors.ErrPatchLoad, "failed to read patch artifact %s", path)
		}
		record, err := decodeRecord(data, path)
		if err != nil {
			return nil, err
		}
		set.Records = append(set.Records, record)
	}
	sort.SliceStable(set.Records, func(i, j int) bool {
		return set.Records[i].Order < set.Records[j].Order
	})
	return set, nil
}

// Append persists a record as the newest version for its target and
// stamps its creation order. The record must not already be present.
func (s *Store) Append(record *Record) error {
	set, err := s.Load(record.Target)
	if err != nil {
		return err
	}
	record.Order = set.NextOrder()

	path := s.pathFor(record.Target, len(set.Records))
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create patch directory for %s", record.Target)
	}

	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.fs.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrPatchStore, "failed to write patch artifact %s", path)
	}

	s.logger.Debug().
		Str("target", record.Target).
		Str("kind", record.Kind.String()).
		Int("order", record.Order).
		Msg("Stored patch record")
	return nil
}

// Targets lists every target path with at least one stored artifact,
// sorted for reproducible output.
func (s *Store) Targets() ([]string, error) {
	seen := map[string]bool{}
	err := s.walk(s.root, func(path string) {
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return
		}
		name := filepath.ToSlash(rel)
		idx := strings.LastIndex(name, artifactSuffix)
		if idx < 0 {
			return
		}
		seen[name[:idx]] = true
	})
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(seen))
	for t := range seen {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets, nil
}

// walk recursively visits files under dir. A missing root is treated
// as an empty store.
func (s *Store) walk(dir string, visit func(path string)) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to read patch directory %s", dir)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := s.walk(path, visit); err != nil {
				return err
			}
			continue
		}
		visit(path)
	}
	return nil
}

func encodeRecord(record *Record) ([]byte, error) {
	art := artifact{
		Target:    record.Target,
		Kind:      record.Kind.String(),
		Style:     record.Style.String(),
		Comment:   record.Comment,
		Order:     record.Order,
		Offset:    record.Offset,
		Preceding: record.Preceding,
		Following: record.Following,
		Body:      record.Body,
		Stock:     record.Stock,
	}
	data, err := toml.Marshal(art)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrPatchStore, "failed to encode patch record for %s", record.Target)
	}
	return data, nil
}

func decodeRecord(data []byte, path string) (*Record, error) {
	var art artifact
	if err := toml.Unmarshal(data, &art); err != nil {
		return nil, errors.Wrapf(err, errors.ErrPatchLoad, "failed to decode patch artifact %s", path)
	}

	kind, err := parseKind(art.Kind)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrPatchLoad, "invalid patch artifact %s", path)
	}
	style, err := parseStyle(art.Style)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrPatchLoad, "invalid patch artifact %s", path)
	}

	return &Record{
		Target:    art.Target,
		Kind:      kind,
		Style:     style,
		Comment:   art.Comment,
		Order:     art.Order,
		Offset:    art.Offset,
		Preceding: art.Preceding,
		Following: art.Following,
		Body:      art.Body,
		Stock:     art.Stock,
	}, nil
}

func parseKind(s string) (guard.Kind, error) {
	switch s {
	case "addition":
		return guard.Addition, nil
	case "deletion":
		return guard.Deletion, nil
	default:
		return 0, fmt.Errorf("unknown kind %q", s)
	}
}

func parseStyle(s string) (guard.Style, error) {
	switch s {
	case "block":
		return guard.Block, nil
	case "single-line":
		return guard.SingleLine, nil
	case "next-line":
		return guard.NextLine, nil
	default:
		return 0, fmt.Errorf("unknown style %q", s)
	}
}
