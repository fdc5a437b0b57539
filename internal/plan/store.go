package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ashwch/cortana/internal/fsutil"
	"go.uber.org/zap"
)

const fileExt = ".json"

// Store keeps one JSON file per plan in a directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid plan id %q", id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

func (s *Store) Save(p *Plan) error {
	path, err := s.path(p.ID)
	if err != nil {
		return err
	}
	p.touch()
	payload, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode plan: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, payload, 0o600); err != nil {
		return fmt.Errorf("could not save plan %s: %w", p.ID, err)
	}
	return nil
}

// Load reads a plan. A missing or unreadable file yields an empty plan
// with the requested id; callers check Empty.
func (s *Store) Load(id string) (*Plan, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	return s.loadFile(path), nil
}

func (s *Store) loadFile(path string) *Plan {
	id := strings.TrimSuffix(filepath.Base(path), fileExt)
	empty := &Plan{ID: id}
	payload, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("could not read plan", zap.String("path", path), zap.Error(err))
		}
		return empty
	}

	var p Plan
	if err := json.Unmarshal(payload, &p); err != nil {
		// Older plan files are a bare list of steps.
		var steps []Step
		if listErr := json.Unmarshal(payload, &steps); listErr != nil {
			s.logger.Warn("ignoring unreadable plan", zap.String("path", path), zap.Error(err))
			return empty
		}
		p = Plan{Steps: steps}
		if info, statErr := os.Stat(path); statErr == nil {
			p.CreatedAt = info.ModTime().UTC()
			p.UpdatedAt = p.CreatedAt
		}
	}
	if p.ID == "" {
		p.ID = id
	}
	for i := range p.Steps {
		if p.Steps[i].Status == "" {
			p.Steps[i].Status = StatusPending
		}
	}
	return &p
}

// List returns every stored plan, most recently updated first.
func (s *Store) List() ([]*Plan, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not list plans: %w", err)
	}
	plans := make([]*Plan, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		p := s.loadFile(filepath.Join(s.dir, name))
		if p.Empty() {
			continue
		}
		plans = append(plans, p)
	}
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].UpdatedAt.After(plans[j].UpdatedAt)
	})
	return plans, nil
}

// Latest returns the most recently updated plan that still has pending
// steps.
func (s *Store) Latest() (*Plan, error) {
	plans, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if !p.Finished() {
			return p, nil
		}
	}
	return nil, ErrNoPlan
}

// Resolve loads id, or the latest unfinished plan when id is empty.
func (s *Store) Resolve(id string) (*Plan, error) {
	if strings.TrimSpace(id) == "" {
		return s.Latest()
	}
	p, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoPlan, id)
	}
	return p, nil
}
