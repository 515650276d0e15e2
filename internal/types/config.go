package types

// Config is the decoded declarative desired state.
type Config struct {
	Mirrors   map[string]Mirror
	Repos     map[string]Repo
	Snapshots map[string]Snapshot
	Publishes map[string][]Publish
}

// ConfigFormat is the on-disk encoding of a declarative config file.
type ConfigFormat string

const (
	ConfigFormatTOML ConfigFormat = "toml"
	ConfigFormatYAML ConfigFormat = "yaml"
	ConfigFormatJSON ConfigFormat = "json"
)

type Mirror struct {
	Archive       string
	Distribution  string
	Components    []string
	Architectures []string
	GPGKeys       []string
	GPGURLs       []string
	Keyserver     string
	Sources       bool
	UDeb          bool
	MaxTries      int
}

// KeyURL returns the fallback URL configured for the key at the same index.
func (m Mirror) KeyURL(key string) string {
	for i, candidate := range m.GPGKeys {
		if candidate == key && i < len(m.GPGURLs) {
			return m.GPGURLs[i]
		}
	}
	return ""
}

type Repo struct {
	Architectures []string
	Components    []string
	Comment       string
	Distribution  string
}

type Snapshot struct {
	Source    SnapshotSource
	Timestamp *TimestampSpec
	RotateVia string
}

// SnapshotSource is one of MirrorSource, RepoSource, FilterSource or
// MergeSource.
type SnapshotSource interface {
	isSnapshotSource()
}

type MirrorSource struct {
	Mirror string
}

type RepoSource struct {
	Repo string
}

type FilterSource struct {
	Source SnapshotRef
	Query  string
}

type MergeSource struct {
	Sources []SnapshotRef
}

func (MirrorSource) isSnapshotSource() {}
func (RepoSource) isSnapshotSource()   {}
func (FilterSource) isSnapshotSource() {}
func (MergeSource) isSnapshotSource()  {}

// SnapshotRef points at a snapshot either literally or through the
// recurrence rule of a declared timestamped snapshot. BackRef is nil for
// literal references; 0 means the current period, 1 the previous one.
type SnapshotRef struct {
	Name            string
	BackRef         *int
	ArchiveOnUpdate string
}

func LiteralRef(name string) SnapshotRef {
	return SnapshotRef{Name: name}
}

func TimestampedRef(name string, backRef int) SnapshotRef {
	return SnapshotRef{Name: name, BackRef: &backRef}
}

type Publish struct {
	Distribution    string
	Components      []string
	Architectures   []string
	Label           string
	Origin          string
	GPGKey          string
	SkipContents    bool
	SkipSigning     bool
	AutomaticUpdate bool
	Source          PublishSource
}

// PublishSource is one of SnapshotsSource, RepoPublishSource or
// ChainedPublishSource.
type PublishSource interface {
	isPublishSource()
}

type SnapshotsSource struct {
	Snapshots []SnapshotRef
}

type RepoPublishSource struct {
	Repo string
}

// ChainedPublishSource serves whatever another publish endpoint currently
// serves.
type ChainedPublishSource struct {
	Endpoint     string
	Distribution string
}

func (c ChainedPublishSource) Key() string {
	return PublishKey(c.Endpoint, c.Distribution)
}

func (SnapshotsSource) isPublishSource()      {}
func (RepoPublishSource) isPublishSource()    {}
func (ChainedPublishSource) isPublishSource() {}

// PublishKey is the "<endpoint> <distribution>" identity used by the
// backend's publish listing.
func PublishKey(endpoint string, distribution string) string {
	return endpoint + " " + distribution
}
