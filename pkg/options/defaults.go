package options

const (
	// DefaultSegmentSize is the advisory segment size limit in bytes
	// (spec §6: "Default 1 MiB in reference").
	DefaultSegmentSize int64 = 1 * 1024 * 1024

	// DefaultFsyncPolicy is the durability policy used when none is given.
	DefaultFsyncPolicy = FsyncAlways

	// DefaultCompactionThreshold disables the compaction hint by default.
	DefaultCompactionThreshold int64 = 0
)

// defaultOptions holds the package defaults. DataDir has no sane default
// and must always be supplied by the caller.
var defaultOptions = Options{
	SegmentSize:         DefaultSegmentSize,
	FsyncPolicy:         DefaultFsyncPolicy,
	CompactionThreshold: DefaultCompactionThreshold,
}

// NewDefaultOptions returns a copy of the package defaults.
func NewDefaultOptions() Options {
	return defaultOptions
}
