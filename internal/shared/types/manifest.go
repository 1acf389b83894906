package types

// AppManifest declares an app's identity, entry point, permissions, and
// router contributions. Manifests are parsed from manifest.{yaml,toml,json}
// files during discovery.
type AppManifest struct {
	ID             string         `json:"id" yaml:"id" toml:"id"`
	Version        string         `json:"version" yaml:"version" toml:"version"`
	Name           string         `json:"name" yaml:"name" toml:"name"`
	Description    string         `json:"description,omitempty" yaml:"description" toml:"description"`
	Entry          EntrySpec      `json:"entry" yaml:"entry" toml:"entry"`
	Capabilities   CapabilitySpec `json:"capabilities" yaml:"capabilities" toml:"capabilities"`
	ResourceQuotas ResourceQuotas `json:"resource_quotas" yaml:"resource_quotas" toml:"resource_quotas"`
	Routers        []RouterSpec   `json:"routers,omitempty" yaml:"routers" toml:"routers"`
}

// EntrySpec locates an app implementation. Module selects a constructor from
// the static factory table; Point is passed through to the constructor (the
// scripted loader uses it as the script path).
type EntrySpec struct {
	Module string `json:"module" yaml:"module" toml:"module"`
	Point  string `json:"point" yaml:"point" toml:"point"`
}

// CapabilitySpec holds the capability tokens an app requests.
type CapabilitySpec struct {
	Required []string `json:"required" yaml:"required" toml:"required"`
	Optional []string `json:"optional,omitempty" yaml:"optional" toml:"optional"`
}

// ResourceQuotas holds per-app usage ceilings. Zero means no ceiling.
type ResourceQuotas struct {
	MaxStorageMB       int `json:"max_storage_mb" yaml:"max_storage_mb" toml:"max_storage_mb"`
	MaxAPICallsPerHour int `json:"max_api_calls_per_hour" yaml:"max_api_calls_per_hour" toml:"max_api_calls_per_hour"`
	MaxDocuments       int `json:"max_documents" yaml:"max_documents" toml:"max_documents"`
}

// RouterSpec declares an HTTP router an app wants mounted.
type RouterSpec struct {
	Module string   `json:"module" yaml:"module" toml:"module"`
	Prefix string   `json:"prefix" yaml:"prefix" toml:"prefix"`
	Tags   []string `json:"tags,omitempty" yaml:"tags" toml:"tags"`
}

// AllCapabilities returns required then optional tokens, order preserved.
func (m *AppManifest) AllCapabilities() []string {
	caps := make([]string, 0, len(m.Capabilities.Required)+len(m.Capabilities.Optional))
	caps = append(caps, m.Capabilities.Required...)
	caps = append(caps, m.Capabilities.Optional...)
	return caps
}
