// Package catalog versions prompt templates. Prompt ids are stable; text
// changes create new versions and the history is append-only.
package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

var (
	// ErrPromptExists is returned by Add when the prompt id is already
	// registered; callers must use Update to change its text.
	ErrPromptExists = eris.New("catalog: prompt already exists, use update")

	// ErrPromptNotFound is returned by Update for unknown prompt ids.
	ErrPromptNotFound = eris.New("catalog: prompt not found")
)

// Catalog holds prompt versions keyed by prompt id. Safe for concurrent
// use.
type Catalog struct {
	mu       sync.RWMutex
	latest   map[string]model.PromptVersion
	versions []model.PromptVersion
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{latest: make(map[string]model.PromptVersion)}
}

// Add registers a new prompt. The version defaults to 1.0.0 and the
// creation time to now when unset. Fails when safety tags are missing or
// the id is already registered.
func (c *Catalog) Add(p model.PromptVersion) (model.PromptVersion, error) {
	if p.PromptID == "" {
		return model.PromptVersion{}, eris.New("catalog: prompt_id must not be empty")
	}
	if len(p.SafetyTags) == 0 {
		return model.PromptVersion{}, eris.New("catalog: safety_tags must not be empty")
	}
	if p.Version == "" {
		p.Version = "1.0.0"
	}
	if _, _, _, err := parseVersion(p.Version); err != nil {
		return model.PromptVersion{}, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.latest[p.PromptID]; ok {
		return model.PromptVersion{}, ErrPromptExists
	}
	c.latest[p.PromptID] = p
	c.versions = append(c.versions, p)

	zap.L().Debug("catalog: prompt added",
		zap.String("prompt_id", p.PromptID),
		zap.String("version", p.Version))
	return p, nil
}

// Update replaces the text of an existing prompt, bumping the minor
// version and stamping a fresh creation time. All other fields carry
// over from the previous version.
func (c *Catalog) Update(promptID, newText string) (model.PromptVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.latest[promptID]
	if !ok {
		return model.PromptVersion{}, ErrPromptNotFound
	}

	major, minor, patch, err := parseVersion(old.Version)
	if err != nil {
		return model.PromptVersion{}, err
	}

	next := old
	next.Text = newText
	next.Version = fmt.Sprintf("%d.%d.%d", major, minor+1, patch)
	next.CreatedAt = time.Now().UTC()

	c.latest[promptID] = next
	c.versions = append(c.versions, next)

	zap.L().Debug("catalog: prompt updated",
		zap.String("prompt_id", promptID),
		zap.String("version", next.Version))
	return next, nil
}

// Get returns the latest version of a prompt.
func (c *Catalog) Get(promptID string) (model.PromptVersion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.latest[promptID]
	return p, ok
}

// GetHistory returns every version of a prompt, oldest first.
func (c *Catalog) GetHistory(promptID string) []model.PromptVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var history []model.PromptVersion
	for _, v := range c.versions {
		if v.PromptID == promptID {
			history = append(history, v)
		}
	}
	return history
}

// IDs returns the registered prompt ids, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.latest))
	for id := range c.latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of distinct prompt ids registered.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.latest)
}

func parseVersion(v string) (major, minor, patch int, err error) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return 0, 0, 0, eris.Errorf("catalog: version %q is not major.minor.patch", v)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, convErr := strconv.Atoi(part)
		if convErr != nil || n < 0 {
			return 0, 0, 0, eris.Errorf("catalog: version %q is not major.minor.patch", v)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
