package config

import (
	"path/filepath"

	"github.com/GoCodeAlone/rulekit"
	"github.com/GoCodeAlone/rulekit/feeders"
)

// Feeders lists the configuration store feeders of c in precedence order: Values,
// then each Source resolved against baseDir, then the environment.
func (c *HostConfig) Feeders(baseDir string) ([]rulekit.Feeder, error) {
	list := []rulekit.Feeder{feeders.MapFeeder(c.Values)}
	for _, src := range c.Sources {
		if !filepath.IsAbs(src) {
			src = filepath.Join(baseDir, src)
		}
		f, err := feeders.ForFile(src)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	if c.EnvPrefix != "" {
		list = append(list, feeders.NewEnvFeeder(c.EnvPrefix))
	}
	return list, nil
}

// FillStore feeds every source of c into store.
func (c *HostConfig) FillStore(store *rulekit.MapConfigStore, baseDir string) error {
	list, err := c.Feeders(baseDir)
	if err != nil {
		return err
	}
	return rulekit.FeedConfigStore(store, list...)
}
