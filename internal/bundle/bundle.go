// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bundle archives a staging directory into the ZIP delivered to the
// PCB vendor.
package bundle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// stampLayout is the timestamp layout embedded in bundle names.
const stampLayout = "20060102150405"

// Name returns the bundle filename for prefix at ts.
func Name(prefix string, ts time.Time) string {
	return fmt.Sprintf("out_%s-%s.zip", prefix, ts.Format(stampLayout))
}

// Prefix derives the bundle name prefix from cfg. firstFile is the first
// file of the scanned source and is only used in source-file mode; when it
// is empty, or a literal prefix is blank, the base directory name is used.
func Prefix(cfg types.PackConfig, firstFile string) string {
	switch cfg.Bundle.PrefixMode {
	case types.PrefixSourceFile:
		if firstFile != "" {
			if p, _, _ := strings.Cut(firstFile, "-"); p != "" {
				return p
			}
		}
	case types.PrefixLiteral:
		if p := strings.TrimSpace(cfg.Bundle.Prefix); p != "" {
			return p
		}
	}
	return folderName(cfg.BaseDir)
}

func folderName(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	name := filepath.Base(dir)
	if name == string(filepath.Separator) || name == "." {
		return "bundle"
	}
	return name
}

// Path returns a bundle path in dir that does not exist yet. When the
// timestamped name is taken, the first eight characters of runID are
// appended.
func Path(dir, prefix string, ts time.Time, runID string) string {
	path := filepath.Join(dir, Name(prefix, ts))
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}
	suffix := runID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return strings.TrimSuffix(path, ".zip") + "-" + suffix + ".zip"
}

// Write archives every regular file under root into a ZIP at dst, with
// slash-separated names relative to root in lexical order. The archive is
// built in a temporary file beside dst and renamed into place only once
// complete. It returns the number of entries written.
func Write(ctx context.Context, root, dst string, level int) (n int, err error) {
	if level == 0 {
		level = flate.DefaultCompression
	}
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return 0, &types.IOError{Op: "archive", Path: dst, Err: fmt.Errorf("invalid compression level %d", level)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".bundle-*.zip.tmp")
	if err != nil {
		return 0, &types.IOError{Op: "create", Path: dst, Err: err}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		n++
		return nil
	})
	if walkErr != nil {
		return 0, &types.IOError{Op: "archive", Path: root, Err: walkErr}
	}

	if err := zw.Close(); err != nil {
		return 0, &types.IOError{Op: "archive", Path: dst, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return 0, &types.IOError{Op: "sync", Path: dst, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, &types.IOError{Op: "close", Path: dst, Err: err}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, &types.IOError{Op: "rename", Path: dst, Err: err}
	}
	return n, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	return nil
}
