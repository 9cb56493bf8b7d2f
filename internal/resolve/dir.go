package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// DirResolver serves mapping documents from a local directory. A URL is
// looked up by its path below Root first, then by its base name. Symlinks
// are followed only while they stay inside Root.
type DirResolver struct {
	Root string
}

func (d *DirResolver) Resolve(ctx context.Context, p string) (string, error) {
	rootPath, err := filepath.Abs(d.Root)
	if err != nil {
		return "", fmt.Errorf("invalid root %q: %w", d.Root, err)
	}
	root, err := os.OpenRoot(rootPath)
	if err != nil {
		return "", fmt.Errorf("failed to open root %q: %w", rootPath, err)
	}
	defer root.Close()

	for _, candidate := range dirCandidates(p) {
		rel, ok := within(rootPath, candidate)
		if !ok {
			continue
		}
		data, err := readIn(root, rel)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %q: %w", rel, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, p)
}

// within resolves rel below root with symlinks scoped to root and returns
// the result relative to root
func within(root, rel string) (string, bool) {
	full, err := securejoin.SecureJoin(root, filepath.FromSlash(rel))
	if err != nil {
		return "", false
	}
	r, err := filepath.Rel(root, full)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return r, true
}

// readIn reads name through root, which refuses paths that leave it
func readIn(root *os.Root, name string) ([]byte, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func dirCandidates(p string) []string {
	clean := p
	if u, err := url.Parse(p); err == nil && u.Scheme != "" {
		clean = u.Path
	}
	clean = path.Clean("/" + strings.ReplaceAll(clean, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return nil
	}

	candidates := []string{clean}
	if base := path.Base(clean); base != clean {
		candidates = append(candidates, base)
	}
	return candidates
}
