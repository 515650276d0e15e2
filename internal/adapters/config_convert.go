package adapters

import (
	"bytes"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ZanzyTHEbar/errbuilder-go"

	"aptly-reconcile/internal/ports"
)

// ConfigConverter rewrites a config document as TOML. The document is
// checked with DecodeConfig first so only valid configs are written.
type ConfigConverter struct{}

func NewConfigConverter() ConfigConverter {
	return ConfigConverter{}
}

func (c ConfigConverter) ConvertToTOML(in string, out string, addDefaults bool) error {
	document, err := readDocument(in)
	if err != nil {
		return err
	}
	if addDefaults {
		applyDefaults(document)
	}
	if _, err := DecodeConfig(document); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(document); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode toml config").
			WithCause(err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write toml config").
			WithCause(err)
	}
	return nil
}

// applyDefaults fills components and distribution of mirrors and publish
// entries that omit them.
func applyDefaults(document map[string]any) {
	fill := func(entry map[string]any) {
		for _, key := range []string{"components", "distribution"} {
			if _, ok := entry[key]; !ok {
				entry[key] = "main"
			}
		}
	}
	if mirrors, ok := document["mirror"].(map[string]any); ok {
		for _, value := range mirrors {
			if entry, ok := value.(map[string]any); ok {
				fill(entry)
			}
		}
	}
	if publishes, ok := document["publish"].(map[string]any); ok {
		for _, value := range publishes {
			switch entries := value.(type) {
			case []any:
				for _, item := range entries {
					if entry, ok := item.(map[string]any); ok {
						fill(entry)
					}
				}
			case []map[string]any:
				for _, entry := range entries {
					fill(entry)
				}
			}
		}
	}
}

var _ ports.ConfigConverterPort = ConfigConverter{}
