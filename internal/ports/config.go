package ports

import "aptly-reconcile/internal/types"

type ConfigLoaderPort interface {
	Load(path string) (types.Config, error)
}

// ConfigConverterPort rewrites a declarative config file as TOML.
type ConfigConverterPort interface {
	ConvertToTOML(inPath string, outPath string, addDefaults bool) error
}
