package marketplace

// Flag bits of the gallery query protocol.
const (
	flagIncludeVersions            = 0x1
	flagIncludeFiles               = 0x2
	flagIncludeCategoryAndTags     = 0x4
	flagIncludeSharedAccounts      = 0x8
	flagIncludeVersionProperties   = 0x10
	flagExcludeNonValidated        = 0x20
	flagIncludeInstallationTargets = 0x40
	flagIncludeAssetURI            = 0x80
	flagIncludeStatistics          = 0x100
	flagIncludeLatestVersionOnly   = 0x200
	flagUnpublished                = 0x1000
)

// Options controls which optional sections appear in a query response.
type Options struct {
	IncludeVersions            bool
	IncludeFiles               bool
	IncludeCategoryAndTags     bool
	IncludeSharedAccounts      bool
	IncludeVersionProperties   bool
	ExcludeNonValidated        bool
	IncludeInstallationTargets bool
	IncludeAssetURI            bool
	IncludeStatistics          bool
	IncludeLatestVersionOnly   bool
	Unpublished                bool
}

var optionBits = []struct {
	bit uint32
	get func(*Options) *bool
}{
	{flagIncludeVersions, func(o *Options) *bool { return &o.IncludeVersions }},
	{flagIncludeFiles, func(o *Options) *bool { return &o.IncludeFiles }},
	{flagIncludeCategoryAndTags, func(o *Options) *bool { return &o.IncludeCategoryAndTags }},
	{flagIncludeSharedAccounts, func(o *Options) *bool { return &o.IncludeSharedAccounts }},
	{flagIncludeVersionProperties, func(o *Options) *bool { return &o.IncludeVersionProperties }},
	{flagExcludeNonValidated, func(o *Options) *bool { return &o.ExcludeNonValidated }},
	{flagIncludeInstallationTargets, func(o *Options) *bool { return &o.IncludeInstallationTargets }},
	{flagIncludeAssetURI, func(o *Options) *bool { return &o.IncludeAssetURI }},
	{flagIncludeStatistics, func(o *Options) *bool { return &o.IncludeStatistics }},
	{flagIncludeLatestVersionOnly, func(o *Options) *bool { return &o.IncludeLatestVersionOnly }},
	{flagUnpublished, func(o *Options) *bool { return &o.Unpublished }},
}

// OptionsFromFlags decodes the protocol bitmask. Unknown bits are ignored.
func OptionsFromFlags(flags uint32) Options {
	var o Options
	for _, b := range optionBits {
		*b.get(&o) = flags&b.bit != 0
	}
	return o
}

// Flags encodes o back into the protocol bitmask. The encoding is canonical:
// equal Options always produce the same value.
func (o Options) Flags() uint32 {
	var flags uint32
	for _, b := range optionBits {
		if *b.get(&o) {
			flags |= b.bit
		}
	}
	return flags
}

// ShapesVersions reports whether the response carries per-version data.
// Asking for version properties implies every active version.
func (o Options) ShapesVersions() bool {
	return o.IncludeVersions || o.IncludeLatestVersionOnly || o.IncludeVersionProperties
}
