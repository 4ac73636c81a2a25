package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxEntrySize caps a single extracted file so a crafted archive cannot
// expand without bound.
const maxEntrySize = 10 << 30 // 10 GiB

// Restore extracts a backup archive into targetDir. Existing files are left
// alone unless force is true, and entries that would land outside targetDir
// are rejected.
func Restore(ctx context.Context, archivePath, targetDir string, force bool) error {
	src, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	gz, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("read gzip header: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	tr := tar.NewReader(gz)
	dbSeen := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read archive entry: %w", err)
		}

		dest, err := safeJoin(targetDir, hdr.Name)
		if err != nil {
			return err
		}

		if !force {
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("file already exists (use --force to overwrite): %s", dest)
			}
		}

		if err := extractEntry(tr, hdr, dest); err != nil {
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}

		if filepath.Ext(hdr.Name) == ".db" {
			dbSeen = true
		}
	}

	if !dbSeen {
		return fmt.Errorf("invalid backup: archive does not contain a .db file")
	}
	return nil
}

// safeJoin resolves an archive entry name under dir, rejecting absolute
// paths and anything that climbs out with "..".
func safeJoin(dir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("path traversal: absolute path %q", name)
	}

	dest := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal: %q escapes the target directory", name)
	}
	return dest, nil
}

// extractEntry writes a single tar entry to disk. Symlinks and other
// special entries are skipped.
func extractEntry(tr *tar.Reader, hdr *tar.Header, dest string) error {
	perm := hdr.FileInfo().Mode().Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, perm)
	case tar.TypeReg:
		return writeFile(tr, dest, perm)
	default:
		return nil
	}
}

func writeFile(r io.Reader, dest string, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, cpErr := io.Copy(out, io.LimitReader(r, maxEntrySize))
	if err := out.Close(); err != nil {
		return err
	}
	return cpErr
}
