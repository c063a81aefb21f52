package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrInvalidName      = errors.New("invalid artifact name")
)

// ArtifactInfo describes one file in a recordings or snapshots
// directory.
type ArtifactInfo struct {
	Filename   string `json:"filename"`
	FileSize   int64  `json:"file_size"`
	ModifiedAt string `json:"modified_time"`
	Device     string `json:"device,omitempty"`
}

// ArtifactPage is one page of a directory listing, newest first.
type ArtifactPage struct {
	Files  []ArtifactInfo `json:"files"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ArtifactStore lists and resolves files in a single flat directory.
// Names are restricted to one path component.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates a store over the given directory.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// List returns a page of files sorted by modification time descending.
// A non-positive limit defaults to 50.
func (s *ArtifactStore) List(limit, offset int) (*ArtifactPage, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return &ArtifactPage{Files: []ArtifactInfo{}, Limit: limit, Offset: offset}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var infos []ArtifactInfo
	var modTimes []time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, ArtifactInfo{
			Filename:   entry.Name(),
			FileSize:   fi.Size(),
			ModifiedAt: fi.ModTime().UTC().Format(time.RFC3339),
			Device:     deviceFromFilename(entry.Name()),
		})
		modTimes = append(modTimes, fi.ModTime())
	}
	sort.SliceStable(infos, func(i, j int) bool { return modTimes[i].After(modTimes[j]) })
	sort.SliceStable(modTimes, func(i, j int) bool { return modTimes[i].After(modTimes[j]) })

	page := &ArtifactPage{Total: len(infos), Limit: limit, Offset: offset}
	if offset >= len(infos) {
		page.Files = []ArtifactInfo{}
		return page, nil
	}
	end := offset + limit
	if end > len(infos) {
		end = len(infos)
	}
	page.Files = infos[offset:end]
	return page, nil
}

// Info returns metadata for one file by name.
func (s *ArtifactStore) Info(name string) (*ArtifactInfo, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	return &ArtifactInfo{
		Filename:   name,
		FileSize:   fi.Size(),
		ModifiedAt: fi.ModTime().UTC().Format(time.RFC3339),
		Device:     deviceFromFilename(name),
	}, nil
}

// Delete removes one file by name.
func (s *ArtifactStore) Delete(name string) error {
	path, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); errors.Is(err, os.ErrNotExist) {
		return ErrArtifactNotFound
	} else if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Resolve maps a name to an on-disk path, rejecting anything that is
// not a single path component.
func (s *ArtifactStore) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\") || filepath.Base(name) != name {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// deviceFromFilename recovers the source stream from the generated
// filename convention (<stream>_...).
func deviceFromFilename(name string) string {
	idx := strings.Index(name, "_")
	if idx <= 0 {
		return ""
	}
	return name[:idx]
}
