package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

var (
	// ErrNotFound means the name does not exist under the root
	ErrNotFound = errors.New("file not found")
	// ErrForbidden means the file exists but cannot be read
	ErrForbidden = errors.New("permission denied")
	// ErrOutsideRoot means the name would resolve outside the document root
	ErrOutsideRoot = errors.New("path escapes document root")
)

// DocRoot confines file access to a single directory. Lookups through ".."
// segments or symlinks that leave the directory fail with ErrOutsideRoot.
// It is safe for concurrent use.
type DocRoot struct {
	dir  string
	root *os.Root
}

// Open opens dir as a document root
func Open(dir string) (*DocRoot, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open document root %s: %w", dir, err)
	}
	return &DocRoot{dir: dir, root: root}, nil
}

// Dir returns the directory the root was opened on
func (d *DocRoot) Dir() string {
	return d.dir
}

// Close releases the root directory handle
func (d *DocRoot) Close() error {
	return d.root.Close()
}

// Clean maps a URL path to a slash-separated name relative to the root.
// It rejects any path containing a ".." segment instead of silently clamping
// it, so traversal attempts are never served as some other file. The root
// itself is ".".
func Clean(urlPath string) (string, error) {
	if strings.Contains(urlPath, "\x00") || strings.Contains(urlPath, "\\") {
		return "", ErrOutsideRoot
	}
	for _, seg := range strings.Split(urlPath, "/") {
		if seg == ".." {
			return "", ErrOutsideRoot
		}
	}
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		return ".", nil
	}
	return name, nil
}

// Stat describes name without opening it for reading
func (d *DocRoot) Stat(name string) (fs.FileInfo, error) {
	info, err := d.root.Stat(name)
	if err != nil {
		return nil, classify(name, err)
	}
	return info, nil
}

// Open opens name for reading. The caller closes the file.
func (d *DocRoot) Open(name string) (*os.File, fs.FileInfo, error) {
	f, err := d.root.Open(name)
	if err != nil {
		return nil, nil, classify(name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, classify(name, err)
	}
	return f, info, nil
}

// Entry is one row of a directory listing
type Entry struct {
	Name  string
	IsDir bool
	Info  fs.FileInfo
}

// ReadDir lists a directory under the root, directories first, then by name
func (d *DocRoot) ReadDir(name string) ([]Entry, error) {
	f, err := d.root.Open(name)
	if err != nil {
		return nil, classify(name, err)
	}
	defer f.Close()

	dirents, err := f.ReadDir(-1)
	if err != nil {
		return nil, classify(name, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		info, err := de.Info()
		if err != nil {
			// Entry vanished between readdir and stat
			continue
		}
		isDir := de.IsDir()
		if de.Type()&fs.ModeSymlink != 0 {
			// Follow symlinks through the root so escaping links are not
			// advertised as directories
			if target, err := d.root.Stat(path.Join(name, de.Name())); err == nil {
				isDir = target.IsDir()
				info = target
			}
		}
		entries = append(entries, Entry{Name: de.Name(), IsDir: isDir, Info: info})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})

	return entries, nil
}

func classify(name string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", name, ErrForbidden)
	case isEscape(err):
		return fmt.Errorf("%s: %w", name, ErrOutsideRoot)
	default:
		return fmt.Errorf("%s: %w", name, err)
	}
}

// os.Root reports escapes with an unexported error value; match its message.
func isEscape(err error) bool {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err
	}
	return err != nil && strings.Contains(err.Error(), "escapes from parent")
}
