// Package config provides hierarchical configuration resolution for the
// capture pipeline.
//
// This package supports layered configuration with clear precedence:
//  1. Environment variables (highest priority)
//  2. Local config (.scribecore.yaml in the working directory)
//  3. Global config (~/.config/scribecore/config.yaml)
//  4. Built-in defaults (lowest priority)
//
// # Basic Usage
//
// Resolve the raw key-value layers:
//
//	resolver := config.NewResolver(config.ResolverConfig{
//	    EnvPrefix: "SCRIBE_",
//	})
//	cfg := resolver.Resolve()
//	fmt.Println(cfg.Get("api_url"))    // "http://localhost:8000/api"
//	fmt.Println(cfg.Source("api_url")) // "default"
//
// Or load the typed settings the pipeline components consume:
//
//	settings, err := config.Load()
//	if err != nil {
//	    // a value failed to parse (bad duration, unknown language tag, ...)
//	}
//
// Every key can be overridden through the environment: api_url becomes
// SCRIBE_API_URL, segment_seconds becomes SCRIBE_SEGMENT_SECONDS, and so on.
package config
