package catalog

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

// filePrompt is the on-disk shape of one catalog entry. The file carries
// the full version history in append order, so a reloaded catalog serves
// the same latest versions and histories as the one that wrote it.
type filePrompt struct {
	PromptID   string    `yaml:"prompt_id"`
	Text       string    `yaml:"text"`
	Version    string    `yaml:"version"`
	Task       string    `yaml:"task,omitempty"`
	SafetyTags []string  `yaml:"safety_tags"`
	Creator    string    `yaml:"creator,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`
}

type fileDoc struct {
	Prompts []filePrompt `yaml:"prompts"`
}

// LoadFile reads a catalog file written by SaveFile, or a hand-written
// seed file. Entries are restored in file order; the last entry per
// prompt id becomes the latest version. A missing file yields an empty
// catalog so a fresh deployment can bootstrap through `catalog add`.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Warn("catalog: file not found, starting empty",
				zap.String("path", path))
			return New(), nil
		}
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}

	c := New()
	for i, fp := range doc.Prompts {
		if fp.PromptID == "" {
			return nil, eris.Errorf("catalog: entry %d in %s has no prompt_id", i, path)
		}
		if len(fp.SafetyTags) == 0 {
			return nil, eris.Errorf("catalog: entry %d in %s has no safety_tags", i, path)
		}
		// Seed files may omit the bookkeeping fields.
		if fp.Version == "" {
			fp.Version = "1.0.0"
		}
		if _, _, _, err := parseVersion(fp.Version); err != nil {
			return nil, err
		}
		if fp.CreatedAt.IsZero() {
			fp.CreatedAt = time.Now().UTC()
		}

		p := model.PromptVersion{
			PromptID:   fp.PromptID,
			Text:       fp.Text,
			Version:    fp.Version,
			Task:       fp.Task,
			SafetyTags: fp.SafetyTags,
			Creator:    fp.Creator,
			CreatedAt:  fp.CreatedAt,
		}
		c.latest[p.PromptID] = p
		c.versions = append(c.versions, p)
	}

	zap.L().Debug("catalog: loaded",
		zap.String("path", path),
		zap.Int("prompts", c.Len()),
		zap.Int("versions", len(c.versions)))
	return c, nil
}

// SaveFile writes the full catalog, history included, to path.
func (c *Catalog) SaveFile(path string) error {
	c.mu.RLock()
	doc := fileDoc{Prompts: make([]filePrompt, 0, len(c.versions))}
	for _, v := range c.versions {
		doc.Prompts = append(doc.Prompts, filePrompt{
			PromptID:   v.PromptID,
			Text:       v.Text,
			Version:    v.Version,
			Task:       v.Task,
			SafetyTags: v.SafetyTags,
			Creator:    v.Creator,
			CreatedAt:  v.CreatedAt,
		})
	}
	c.mu.RUnlock()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "catalog: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "catalog: write %s", path)
	}
	return nil
}
