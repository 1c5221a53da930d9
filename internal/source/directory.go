package source

import "fmt"

// Directory is a board package that already exists on local disk.
type Directory struct {
	dir     string
	version string
	origin  string
}

// NewDirectory reads the package version from dir. An empty origin defaults
// to "directory: <dir>".
func NewDirectory(dir, origin string) (*Directory, error) {
	version, err := ReadPlatformVersion(dir)
	if err != nil {
		return nil, err
	}
	if origin == "" {
		origin = fmt.Sprintf("directory: %s", dir)
	}
	return &Directory{dir: dir, version: version, origin: origin}, nil
}

func (d *Directory) Version() string { return d.version }
func (d *Directory) Origin() string  { return d.origin }
func (d *Directory) Path() string    { return d.dir }

// Release is a no-op; the directory belongs to the user.
func (d *Directory) Release() error { return nil }
