package types

import "fmt"

// ResourceKind names the category of a provide/require edge.
type ResourceKind string

const (
	ResourceMirror   ResourceKind = "mirror"
	ResourceRepo     ResourceKind = "repo"
	ResourceSnapshot ResourceKind = "snapshot"
	ResourcePublish  ResourceKind = "publish"
	ResourceGPGKey   ResourceKind = "gpg_key"
	ResourceVirtual  ResourceKind = "virtual"
	// ResourceAny is only valid on the require side.
	ResourceAny ResourceKind = "any"
)

var knownResourceKinds = map[ResourceKind]struct{}{
	ResourceMirror:   {},
	ResourceRepo:     {},
	ResourceSnapshot: {},
	ResourcePublish:  {},
	ResourceGPGKey:   {},
	ResourceVirtual:  {},
}

// IsKnown reports whether the kind belongs to the provide vocabulary.
func (k ResourceKind) IsKnown() bool {
	_, ok := knownResourceKinds[k]
	return ok
}

// Resource identifies a backend entity or a virtual ordering token. Resources
// carry no attributes; those live only in the backend.
type Resource struct {
	Kind ResourceKind
	Name string
}

func NewResource(kind ResourceKind, name string) Resource {
	return Resource{Kind: kind, Name: name}
}

func (r Resource) String() string {
	return fmt.Sprintf("(%s, %s)", r.Kind, r.Name)
}

// Less orders resources by kind, then name.
func (r Resource) Less(other Resource) bool {
	if r.Kind != other.Kind {
		return r.Kind < other.Kind
	}
	return r.Name < other.Name
}
