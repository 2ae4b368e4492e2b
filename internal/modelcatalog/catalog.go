package modelcatalog

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type snapshot struct {
	models  []Model
	byID    map[string]Model
	byAlias map[string]string
}

// Catalog answers model lookups against the most recently loaded
// snapshot. Reads never block reloads.
type Catalog struct {
	current atomic.Value // holds *snapshot
}

func buildSnapshot(models []Model) (*snapshot, error) {
	if len(models) == 0 {
		return nil, errors.New("models cannot be empty")
	}
	s := &snapshot{
		models:  models,
		byID:    make(map[string]Model, len(models)),
		byAlias: make(map[string]string),
	}
	for _, m := range models {
		if m.ID == "" {
			return nil, errors.New("model id cannot be empty")
		}
		if _, dup := s.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}
		if m.ContextWindow <= 0 {
			return nil, fmt.Errorf("model %q: context_window must be positive", m.ID)
		}
		s.byID[m.ID] = m
		for _, alias := range m.Aliases {
			if prev, dup := s.byAlias[alias]; dup && prev != m.ID {
				return nil, fmt.Errorf("alias %q maps to both %q and %q", alias, prev, m.ID)
			}
			s.byAlias[alias] = m.ID
		}
	}
	return s, nil
}

// New builds a catalog from an explicit model list, without file
// watching.
func New(models []Model) (*Catalog, error) {
	s, err := buildSnapshot(models)
	if err != nil {
		return nil, err
	}
	c := &Catalog{}
	c.current.Store(s)
	return c, nil
}

// Load reads models.yml from the standard config paths, falling back to
// the compiled defaults when no file is deployed, and hot-reloads on
// change. A reload that fails validation is ignored and the previous
// snapshot stays live.
func Load() (*Catalog, error) {
	v := viper.New()

	v.SetConfigName("models")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/paygate/config")
	v.AddConfigPath("/etc/paygate")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return New(DefaultModels())
	}

	var models []Model
	if err := v.UnmarshalKey("models", &models); err != nil {
		return nil, err
	}
	s, err := buildSnapshot(models)
	if err != nil {
		return nil, err
	}

	c := &Catalog{}
	c.current.Store(s)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated []Model
		if err := v.UnmarshalKey("models", &updated); err != nil {
			log.Printf("[model-catalog] reload failed: %v", err)
			return
		}
		next, err := buildSnapshot(updated)
		if err != nil {
			log.Printf("[model-catalog] invalid catalog ignored: %v", err)
			return
		}
		c.current.Store(next)
		log.Printf("[model-catalog] reloaded from %s", e.Name)
	})

	return c, nil
}

func (c *Catalog) load() *snapshot {
	return c.current.Load().(*snapshot)
}

// Resolve looks a model up by id or alias.
func (c *Catalog) Resolve(idOrAlias string) (Model, error) {
	s := c.load()
	if m, ok := s.byID[idOrAlias]; ok {
		return m, nil
	}
	if id, ok := s.byAlias[idOrAlias]; ok {
		return s.byID[id], nil
	}
	return Model{}, fmt.Errorf("%w: %s", ErrUnknownModel, idOrAlias)
}

// ContextWindow returns the context window for the model.
func (c *Catalog) ContextWindow(idOrAlias string) (int, error) {
	m, err := c.Resolve(idOrAlias)
	if err != nil {
		return 0, err
	}
	return m.ContextWindow, nil
}

// Models returns every enabled model.
func (c *Catalog) Models() []Model {
	s := c.load()
	out := make([]Model, 0, len(s.models))
	for _, m := range s.models {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// ModelsForTier returns the enabled models servable on the given tier.
func (c *Catalog) ModelsForTier(tierID string) []Model {
	s := c.load()
	out := make([]Model, 0, len(s.models))
	for _, m := range s.models {
		if m.AvailableOn(tierID) {
			out = append(out, m)
		}
	}
	return out
}
