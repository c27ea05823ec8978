// Package packager builds deterministic tarballs of artifact directories.
package packager

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Result describes one packaging run.
type Result struct {
	ArtifactsDir string `json:"artifacts_dir"`
	PackagePath  string `json:"package"`
}

// Archive writes a tar.gz containing every file under artifactsDir,
// excluding the tarball itself. Entries are sorted and carry fixed
// metadata, so packaging identical content twice yields identical bytes.
func Archive(artifactsDir, packagePath string) (*Result, error) {
	if packagePath == "" {
		packagePath = filepath.Join(artifactsDir, "artifacts.tar.gz")
	}

	var files []string
	err := filepath.WalkDir(artifactsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == packagePath {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning artifacts directory: %w", err)
	}
	sort.Strings(files)

	out, err := os.Create(packagePath)
	if err != nil {
		return nil, fmt.Errorf("creating package: %w", err)
	}
	defer out.Close()

	gz, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	// zero the gzip header timestamp for reproducible output
	gz.ModTime = time.Unix(0, 0)
	tw := tar.NewWriter(gz)

	for _, path := range files {
		if err := addFile(tw, artifactsDir, path); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finalizing gzip: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	return &Result{ArtifactsDir: artifactsDir, PackagePath: packagePath}, nil
}

func addFile(tw *tar.Writer, root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr := &tar.Header{
		Name:    strings.ReplaceAll(rel, string(filepath.Separator), "/"),
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: time.Unix(0, 0),
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", rel, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("writing tar entry for %s: %w", rel, err)
	}
	return nil
}
