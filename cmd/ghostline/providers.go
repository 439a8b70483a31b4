package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/dshills/ghostline/internal/config"
	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/provider/dictionary"
	"github.com/dshills/ghostline/internal/inline/provider/script"
	"github.com/dshills/ghostline/internal/logging"
)

// buildProviders creates the configured providers in priority order. The
// returned release function closes script states.
func buildProviders(cfg *config.Config, logger *log.Logger) ([]provider.Provider, func(), error) {
	var (
		providers []provider.Provider
		scripts   []*script.Script
	)
	release := func() {
		for _, s := range scripts {
			_ = s.Close()
		}
	}

	for _, kind := range cfg.Demo.Providers {
		var p provider.Provider
		switch kind {
		case config.ProviderStatic:
			p = provider.NewStatic(config.ProviderStatic, cfg.Demo.Variants...)
		case config.ProviderDictionary:
			d, err := loadDictionary(cfg.Demo.Dictionary, logger)
			if err != nil {
				release()
				return nil, nil, err
			}
			p = d
		case config.ProviderScript:
			s, err := script.Load(cfg.Demo.Script, script.WithLogger(logging.Sub(logger, "script")))
			if err != nil {
				release()
				return nil, nil, err
			}
			scripts = append(scripts, s)
			p = s
		default:
			release()
			return nil, nil, fmt.Errorf("unknown provider %q", kind)
		}

		if ttl := cfg.TTL(); ttl > 0 {
			p = provider.NewCached(p, ttl)
		}
		providers = append(providers, p)
	}
	return providers, release, nil
}

func loadDictionary(path string, logger *log.Logger) (*dictionary.Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	d := dictionary.New(dictionary.WithLogger(logging.Sub(logger, "dictionary")))
	if err := d.Load(f); err != nil {
		return nil, err
	}
	return d, nil
}
