package adapters

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"aptly-reconcile/internal/ports"
	"aptly-reconcile/internal/types"
)

type ConfigFileAdapter struct{}

func NewConfigFileAdapter() ConfigFileAdapter {
	return ConfigFileAdapter{}
}

func (a ConfigFileAdapter) Load(path string) (types.Config, error) {
	document, err := readDocument(path)
	if err != nil {
		return types.Config{}, err
	}
	return DecodeConfig(document)
}

// FormatOf picks the decoder from the file extension.
func FormatOf(path string) (types.ConfigFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return types.ConfigFormatTOML, nil
	case ".yaml", ".yml":
		return types.ConfigFormatYAML, nil
	case ".json":
		return types.ConfigFormatJSON, nil
	default:
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("unsupported config file extension: " + filepath.Ext(path))
	}
}

func readDocument(path string) (map[string]any, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("config file not found").
			WithCause(err)
	}
	document := map[string]any{}
	switch format {
	case types.ConfigFormatTOML:
		err = toml.Unmarshal(data, &document)
	case types.ConfigFormatYAML:
		log.Warn().Str("path", path).Msg("yaml config is deprecated, convert it with 'aptly-reconcile convert'")
		err = yaml.Unmarshal(data, &document)
	case types.ConfigFormatJSON:
		err = json.Unmarshal(data, &document)
	}
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse " + string(format) + " config").
			WithCause(err)
	}
	return document, nil
}

var _ ports.ConfigLoaderPort = ConfigFileAdapter{}
