package adapters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"aptly-reconcile/internal/shared"
	"aptly-reconcile/internal/types"
)

type rawConfig struct {
	Mirror   map[string]rawMirror    `mapstructure:"mirror" validate:"dive"`
	Repo     map[string]rawRepo      `mapstructure:"repo" validate:"dive"`
	Snapshot map[string]rawSnapshot  `mapstructure:"snapshot" validate:"dive"`
	Publish  map[string][]rawPublish `mapstructure:"publish" validate:"dive,min=1,dive"`
}

type rawMirror struct {
	Archive       string   `mapstructure:"archive" validate:"required"`
	Distribution  string   `mapstructure:"distribution" validate:"required"`
	Components    []string `mapstructure:"components"`
	Architectures []string `mapstructure:"architectures"`
	GPGKeys       []string `mapstructure:"gpg-keys" validate:"dive,required"`
	GPGURLs       []string `mapstructure:"gpg-urls"`
	Keyserver     string   `mapstructure:"keyserver"`
	Sources       bool     `mapstructure:"sources"`
	UDeb          bool     `mapstructure:"udeb"`
	MaxTries      int      `mapstructure:"max-tries" validate:"gte=0"`
}

type rawRepo struct {
	Architectures []string `mapstructure:"architectures"`
	Components    []string `mapstructure:"components"`
	Comment       string   `mapstructure:"comment"`
	Distribution  string   `mapstructure:"distribution"`
}

type rawSnapshot struct {
	Mirror    string        `mapstructure:"mirror"`
	Repo      string        `mapstructure:"repo"`
	Filter    *rawFilter    `mapstructure:"filter"`
	Merge     []any         `mapstructure:"merge"`
	Timestamp *rawTimestamp `mapstructure:"timestamp"`
	RotateVia string        `mapstructure:"rotate_via"`
}

type rawFilter struct {
	Source any    `mapstructure:"source" validate:"required"`
	Query  string `mapstructure:"query" validate:"required"`
}

type rawTimestamp struct {
	Time         string `mapstructure:"time" validate:"required"`
	RepeatWeekly string `mapstructure:"repeat-weekly" validate:"omitempty,oneof=mon tue wed thu fri sat sun"`
}

type rawPublish struct {
	Distribution    string   `mapstructure:"distribution" validate:"required"`
	Components      []string `mapstructure:"components"`
	Architectures   []string `mapstructure:"architectures"`
	Label           string   `mapstructure:"label"`
	Origin          string   `mapstructure:"origin"`
	GPGKey          string   `mapstructure:"gpg-key"`
	SkipContents    bool     `mapstructure:"skip-contents"`
	SkipSigning     bool     `mapstructure:"skip-signing"`
	AutomaticUpdate bool     `mapstructure:"automatic-update"`
	Snapshots       []any    `mapstructure:"snapshots"`
	Repo            string   `mapstructure:"repo"`
	Publish         string   `mapstructure:"publish"`
}

type rawRef struct {
	Name            string `mapstructure:"name" validate:"required"`
	Timestamp       any    `mapstructure:"timestamp"`
	ArchiveOnUpdate string `mapstructure:"archive-on-update"`
}

var configValidator = validator.New()

// DecodeConfig maps a generic document onto the declarative config. Single
// values are accepted where lists are expected and unknown keys are
// rejected.
func DecodeConfig(document map[string]any) (types.Config, error) {
	var raw rawConfig
	if err := decodeInto(document, &raw); err != nil {
		return types.Config{}, err
	}
	if err := configValidator.Struct(raw); err != nil {
		return types.Config{}, configError("config validation failed", err)
	}

	cfg := types.Config{
		Mirrors:   map[string]types.Mirror{},
		Repos:     map[string]types.Repo{},
		Snapshots: map[string]types.Snapshot{},
		Publishes: map[string][]types.Publish{},
	}
	for name, mirror := range raw.Mirror {
		cfg.Mirrors[name] = types.Mirror{
			Archive:       mirror.Archive,
			Distribution:  mirror.Distribution,
			Components:    mirror.Components,
			Architectures: mirror.Architectures,
			GPGKeys:       mirror.GPGKeys,
			GPGURLs:       mirror.GPGURLs,
			Keyserver:     mirror.Keyserver,
			Sources:       mirror.Sources,
			UDeb:          mirror.UDeb,
			MaxTries:      mirror.MaxTries,
		}
	}
	for name, repo := range raw.Repo {
		cfg.Repos[name] = types.Repo(repo)
	}
	for _, name := range shared.SortedKeys(raw.Snapshot) {
		snapshot, err := convertSnapshot(name, raw.Snapshot[name])
		if err != nil {
			return types.Config{}, err
		}
		cfg.Snapshots[name] = snapshot
	}
	for _, name := range shared.SortedKeys(raw.Publish) {
		for i, entry := range raw.Publish[name] {
			publish, err := convertPublish(fmt.Sprintf("%s[%d]", name, i), entry)
			if err != nil {
				return types.Config{}, err
			}
			cfg.Publishes[name] = append(cfg.Publishes[name], publish)
		}
	}
	return cfg, nil
}

func decodeInto(input any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return configError("failed to build config decoder", err)
	}
	if err := decoder.Decode(input); err != nil {
		return configError("failed to decode config", err)
	}
	return nil
}

func convertSnapshot(name string, raw rawSnapshot) (types.Snapshot, error) {
	out := types.Snapshot{RotateVia: raw.RotateVia}
	if raw.Timestamp != nil {
		out.Timestamp = &types.TimestampSpec{Time: raw.Timestamp.Time, RepeatWeekly: raw.Timestamp.RepeatWeekly}
	}
	if types.HasPlaceholder(name) && out.Timestamp == nil {
		return types.Snapshot{}, configError(fmt.Sprintf("snapshot %s is timestamped but has no timestamp config", name), nil)
	}

	var sources []types.SnapshotSource
	if raw.Mirror != "" {
		sources = append(sources, types.MirrorSource{Mirror: raw.Mirror})
	}
	if raw.Repo != "" {
		sources = append(sources, types.RepoSource{Repo: raw.Repo})
	}
	if raw.Filter != nil {
		ref, err := convertRef(raw.Filter.Source)
		if err != nil {
			return types.Snapshot{}, err
		}
		sources = append(sources, types.FilterSource{Source: ref, Query: raw.Filter.Query})
	}
	if raw.Merge != nil {
		if len(raw.Merge) == 0 {
			return types.Snapshot{}, configError(fmt.Sprintf("snapshot %s merges nothing", name), nil)
		}
		merge := types.MergeSource{}
		for _, item := range raw.Merge {
			ref, err := convertRef(item)
			if err != nil {
				return types.Snapshot{}, err
			}
			merge.Sources = append(merge.Sources, ref)
		}
		sources = append(sources, merge)
	}
	if len(sources) != 1 {
		return types.Snapshot{}, configError(fmt.Sprintf("snapshot %s needs exactly one of mirror, repo, filter or merge", name), nil)
	}
	out.Source = sources[0]
	return out, nil
}

func convertPublish(label string, raw rawPublish) (types.Publish, error) {
	out := types.Publish{
		Distribution:    raw.Distribution,
		Components:      raw.Components,
		Architectures:   raw.Architectures,
		Label:           raw.Label,
		Origin:          raw.Origin,
		GPGKey:          raw.GPGKey,
		SkipContents:    raw.SkipContents,
		SkipSigning:     raw.SkipSigning,
		AutomaticUpdate: raw.AutomaticUpdate,
	}
	var sources []types.PublishSource
	if raw.Snapshots != nil {
		refs := types.SnapshotsSource{}
		for _, item := range raw.Snapshots {
			ref, err := convertRef(item)
			if err != nil {
				return types.Publish{}, err
			}
			refs.Snapshots = append(refs.Snapshots, ref)
		}
		sources = append(sources, refs)
	}
	if raw.Repo != "" {
		sources = append(sources, types.RepoPublishSource{Repo: raw.Repo})
	}
	if raw.Publish != "" {
		chained, err := parseChained(raw.Publish)
		if err != nil {
			return types.Publish{}, err
		}
		sources = append(sources, chained)
	}
	if len(sources) != 1 {
		return types.Publish{}, configError(fmt.Sprintf("publish %s needs exactly one of snapshots, repo or publish", label), nil)
	}
	out.Source = sources[0]
	return out, nil
}

// parseChained accepts "endpoint distribution" and "endpoint/distribution".
func parseChained(value string) (types.ChainedPublishSource, error) {
	fields := strings.Fields(value)
	if len(fields) == 1 {
		if endpoint, distribution, ok := strings.Cut(fields[0], "/"); ok {
			fields = []string{endpoint, distribution}
		}
	}
	if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
		return types.ChainedPublishSource{}, configError(fmt.Sprintf("invalid publish reference %q", value), nil)
	}
	return types.ChainedPublishSource{Endpoint: fields[0], Distribution: fields[1]}, nil
}

func convertRef(value any) (types.SnapshotRef, error) {
	if name, ok := value.(string); ok {
		if strings.TrimSpace(name) == "" {
			return types.SnapshotRef{}, configError("empty snapshot reference", nil)
		}
		return types.LiteralRef(name), nil
	}
	var raw rawRef
	if err := decodeInto(value, &raw); err != nil {
		return types.SnapshotRef{}, err
	}
	if err := configValidator.Struct(raw); err != nil {
		return types.SnapshotRef{}, configError("invalid snapshot reference", err)
	}
	ref := types.SnapshotRef{Name: raw.Name, ArchiveOnUpdate: raw.ArchiveOnUpdate}
	if raw.Timestamp != nil {
		backRef, err := parseBackRef(raw.Timestamp)
		if err != nil {
			return types.SnapshotRef{}, err
		}
		ref.BackRef = &backRef
	}
	return ref, nil
}

func parseBackRef(value any) (int, error) {
	var n int
	switch v := value.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "current":
			return 0, nil
		case "previous":
			return 1, nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, configError(fmt.Sprintf("invalid timestamp reference %q", v), nil)
		}
		n = parsed
	case int:
		n = v
	case int64:
		n = int(v)
	case uint64:
		n = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, configError(fmt.Sprintf("invalid timestamp reference %v", v), nil)
		}
		n = int(v)
	default:
		return 0, configError(fmt.Sprintf("invalid timestamp reference %v", v), nil)
	}
	if n < 0 {
		return 0, configError(fmt.Sprintf("negative timestamp reference %d", n), nil)
	}
	return n, nil
}

func configError(msg string, cause error) error {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg)
	if cause != nil {
		return builder.WithCause(cause)
	}
	return builder
}
