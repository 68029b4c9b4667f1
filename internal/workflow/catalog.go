package workflow

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/opencode-ai/wflow/internal/logging"
	"github.com/opencode-ai/wflow/pkg/types"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/afero"
)

// Pattern selects workflow files under the catalog root.
const Pattern = "**/*.{yaml,yml}"

// MaxSuggestionDistance bounds the edit distance of "did you mean" hints.
const MaxSuggestionDistance = 3

// ErrNotFound is returned by Get for an unknown workflow id.
var ErrNotFound = errors.New("workflow not found")

// Catalog is the set of workflows found under a directory. A file that
// fails to load is recorded against its id; the rest stay available.
type Catalog struct {
	fs   afero.Fs
	root string

	mu        sync.RWMutex
	workflows map[string]*types.Workflow
	failures  map[string]error
	ids       []string
}

// NewCatalog creates a catalog over root on fsys. Call Load to populate it.
func NewCatalog(fsys afero.Fs, root string) *Catalog {
	return &Catalog{
		fs:        fsys,
		root:      root,
		workflows: make(map[string]*types.Workflow),
		failures:  make(map[string]error),
	}
}

// NewOsCatalog creates a catalog over a directory on the real filesystem.
func NewOsCatalog(root string) *Catalog {
	return NewCatalog(afero.NewOsFs(), root)
}

// Root returns the catalog directory.
func (c *Catalog) Root() string {
	return c.root
}

// Load rescans the directory and replaces the catalog contents. It fails
// only when the directory itself cannot be read.
func (c *Catalog) Load() error {
	if ok, err := afero.DirExists(c.fs, c.root); err != nil || !ok {
		return fmt.Errorf("workflows directory %s: %w", c.root, fs.ErrNotExist)
	}

	sub := afero.NewIOFS(afero.NewBasePathFs(c.fs, c.root))
	matches, err := doublestar.Glob(sub, Pattern)
	if err != nil {
		return fmt.Errorf("scan workflows: %w", err)
	}

	workflows := make(map[string]*types.Workflow, len(matches))
	failures := make(map[string]error)
	for _, rel := range matches {
		if skip(rel) {
			continue
		}
		id := strings.TrimSuffix(rel, path.Ext(rel))
		if _, dup := workflows[id]; dup {
			failures[id] = fmt.Errorf("%s: another file already defines workflow %q", rel, id)
			delete(workflows, id)
			continue
		}

		data, err := afero.ReadFile(c.fs, filepath.Join(c.root, filepath.FromSlash(rel)))
		if err != nil {
			failures[id] = err
			continue
		}
		wf, err := parse(id, rel, data)
		if err != nil {
			logging.Warn().Err(err).Str("workflow", id).Msg("skipping invalid workflow")
			failures[id] = err
			continue
		}
		if missing := Undeclared(wf); len(missing) > 0 {
			logging.Warn().Str("workflow", id).Strs("placeholders", missing).Msg("placeholders without arguments")
		}
		workflows[id] = wf
	}

	ids := make([]string, 0, len(workflows))
	for id := range workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	c.mu.Lock()
	c.workflows = workflows
	c.failures = failures
	c.ids = ids
	c.mu.Unlock()

	logging.Debug().Int("workflows", len(ids)).Int("failures", len(failures)).Str("root", c.root).Msg("catalog loaded")
	return nil
}

// skip excludes hidden paths and the settings file that may sit next to
// workflows.
func skip(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	base := path.Base(rel)
	return base == "config.yaml" || base == "config.yml"
}

// Get returns the workflow with the given id. A file that failed to load
// returns its load error.
func (c *Catalog) Get(id string) (*types.Workflow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if wf, ok := c.workflows[id]; ok {
		return wf, nil
	}
	if err, ok := c.failures[id]; ok {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Add registers an in-memory workflow, replacing any with the same id.
func (c *Catalog) Add(wf *types.Workflow) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.workflows[wf.ID]; !exists {
		c.ids = append(c.ids, wf.ID)
		sort.Strings(c.ids)
	}
	c.workflows[wf.ID] = wf
	delete(c.failures, wf.ID)
}

// List returns summaries of all loaded workflows, sorted by id.
func (c *Catalog) List() []types.WorkflowSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.WorkflowSummary, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.workflows[id].Summary())
	}
	return out
}

// Failures returns load errors keyed by workflow id.
func (c *Catalog) Failures() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]error, len(c.failures))
	for id, err := range c.failures {
		out[id] = err
	}
	return out
}

// searchSource adapts the catalog for fuzzy matching.
type searchSource []*types.Workflow

func (s searchSource) String(i int) string {
	wf := s[i]
	return wf.ID + " " + wf.Name + " " + strings.Join(wf.Tags, " ")
}

func (s searchSource) Len() int { return len(s) }

// Search returns workflows fuzzily matching query, best first. An empty
// query returns everything.
func (c *Catalog) Search(query string) []types.WorkflowSummary {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.List()
	}

	c.mu.RLock()
	src := make(searchSource, 0, len(c.ids))
	for _, id := range c.ids {
		src = append(src, c.workflows[id])
	}
	c.mu.RUnlock()

	matches := fuzzy.FindFrom(query, src)
	out := make([]types.WorkflowSummary, 0, len(matches))
	for _, m := range matches {
		out = append(out, src[m.Index].Summary())
	}
	return out
}

// Suggest returns ids within MaxSuggestionDistance edits of id, closest
// first.
func (c *Catalog) Suggest(id string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	type candidate struct {
		id   string
		dist int
	}
	var candidates []candidate
	for _, known := range c.ids {
		d := levenshtein.ComputeDistance(id, known)
		if base := path.Base(known); base != known {
			if bd := levenshtein.ComputeDistance(id, base); bd < d {
				d = bd
			}
		}
		if d <= MaxSuggestionDistance {
			candidates = append(candidates, candidate{known, d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	out := make([]string, len(candidates))
	for i, cand := range candidates {
		out[i] = cand.id
	}
	return out
}
