package stash

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/confgraph/confgraph/pkg/graph"
)

// CachingResolver consults a stash before resolving plain-settings sections,
// and writes resolutions back so later runs skip the build. Typed sections
// always resolve live: constructed objects do not survive a JSON round-trip.
type CachingResolver struct {
	Graph  *graph.Resolver
	Stash  Stash
	Logger zerolog.Logger
}

// Resolve returns the stashed settings for section when present, otherwise
// resolves live and stashes the result when it is a settings object.
func (c *CachingResolver) Resolve(ctx context.Context, section string) (any, error) {
	data, ok, err := c.Stash.Load(ctx, section)
	if err != nil {
		return nil, err
	}
	if ok {
		c.Logger.Debug().Str("section", section).Msg("Loaded settings from stash")
		return settingsFromMap(section, data), nil
	}
	v, err := c.Graph.Resolve(section)
	if err != nil {
		return nil, err
	}
	if settings, isSettings := v.(*graph.Settings); isSettings {
		if err := c.Stash.Dump(ctx, section, settings.AsMap()); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Invalidate drops both the stashed and the in-memory cached value for a
// section.
func (c *CachingResolver) Invalidate(ctx context.Context, section string) error {
	c.Graph.Evict(section)
	return c.Stash.Delete(ctx, section)
}

// settingsFromMap rebuilds a settings view from stored data. Storage does not
// keep option order, so entries come back sorted by key.
func settingsFromMap(section string, data map[string]any) *graph.Settings {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	settings := graph.NewSettings(section)
	for _, k := range keys {
		settings.Set(k, data[k])
	}
	return settings
}
