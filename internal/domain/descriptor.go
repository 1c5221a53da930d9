package domain

// DefaultArchiveExt is the archive extension used when a package does not
// override its archive format.
const DefaultArchiveExt = "tar.bz2"

// Descriptor identifies one locally defined board package.
type Descriptor struct {
	// Parent is the name of the index package that owns the platform.
	Parent string
	// Name is the platform instance name, taken from the registry section.
	Name    string
	Version string
	// Origin describes where the package came from, e.g. "git: <url>".
	Origin        string
	ArchivePrefix string
	ArchiveExt    string
	// Template is the platform entry JSON with {version}, {filename},
	// {sha256} and {size} placeholders.
	Template string
}

// ArchiveName returns "<prefix>-<version>.<ext>". The prefix defaults to the
// descriptor name.
func (d Descriptor) ArchiveName() string {
	prefix := d.Name
	if d.ArchivePrefix != "" {
		prefix = d.ArchivePrefix
	}
	ext := d.ArchiveExt
	if ext == "" {
		ext = DefaultArchiveExt
	}
	return prefix + "-" + d.Version + "." + ext
}

// ArchiveResult describes an archive written to disk.
type ArchiveResult struct {
	Path     string
	Filename string
	Size     int64
	SHA256   string
}
