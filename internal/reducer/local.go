package reducer

import (
	"fmt"
	"plugin"

	"github.com/banshee-data/hyperscan/internal/paramspace"
)

// PluginSymbol is the exported name looked up in reducer plugins. It must be
// a variable of a type implementing Strategy, or a func() Strategy.
const PluginSymbol = "Reducer"

func newLocal(o Options) (Strategy, error) {
	if o.Custom != nil {
		return o.Custom, nil
	}
	if o.PluginPath == "" {
		return nil, fmt.Errorf("%w: local reduction needs a custom strategy or plugin path", paramspace.ErrConfig)
	}
	return LoadPlugin(o.PluginPath)
}

// LoadPlugin opens a Go plugin and returns its Reducer.
func LoadPlugin(path string) (Strategy, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reducer plugin %s: %w", path, err)
	}
	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("reducer plugin %s: %w", path, err)
	}
	return strategyFromSymbol(sym)
}

func strategyFromSymbol(sym any) (Strategy, error) {
	switch s := sym.(type) {
	case Strategy:
		return s, nil
	case *Strategy:
		if s != nil && *s != nil {
			return *s, nil
		}
	case func() Strategy:
		return s(), nil
	}
	return nil, fmt.Errorf("%w: plugin symbol %s has type %T, want Strategy", paramspace.ErrConfig, PluginSymbol, sym)
}
