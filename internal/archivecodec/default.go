package archivecodec

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"golang.org/x/text/unicode/norm"

	"github.com/miho/vgitarchive/internal/vgaerr"
)

// Default is the default archive codec, backed by
// github.com/mholt/archives. Identifier "ZIP". Entries are compressed
// with archive/zip's built-in deflate implementation.
type Default struct{}

// NewDefault constructs the default ZIP codec.
func NewDefault() Default { return Default{} }

// Identifier implements Codec.
func (Default) Identifier() string { return "ZIP" }

// Pack implements Codec.
func (Default) Pack(folder, destFile string, excludedEndings ...string) error {
	ctx := context.Background()

	fileMap, err := collectFiles(folder, excludedEndings)
	if err != nil {
		return err
	}
	files, err := archives.FilesFromDisk(ctx, nil, fileMap)
	if err != nil {
		return vgaerr.NewIOFailure("archivecodec.Default.Pack: collect", err)
	}

	out, err := os.Create(destFile)
	if err != nil {
		return vgaerr.NewIOFailure("archivecodec.Default.Pack: create", err)
	}
	defer out.Close()

	format := archives.Zip{}
	if err := format.Archive(ctx, out, files); err != nil {
		return vgaerr.NewIOFailure("archivecodec.Default.Pack: archive", err)
	}
	return nil
}

// Unpack implements Codec.
func (Default) Unpack(archive, destFolder string) error {
	ctx := context.Background()

	in, err := os.Open(archive)
	if err != nil {
		return vgaerr.NewIOFailure("archivecodec.Default.Unpack: open", err)
	}
	defer in.Close()

	if err := os.MkdirAll(destFolder, 0o755); err != nil {
		return vgaerr.NewIOFailure("archivecodec.Default.Unpack: mkdir", err)
	}

	format := archives.Zip{}
	err = format.Extract(ctx, in, func(_ context.Context, f archives.FileInfo) error {
		return extractEntry(destFolder, f)
	})
	if err != nil {
		return vgaerr.NewIOFailure("archivecodec.Default.Unpack: extract", err)
	}
	return nil
}

func extractEntry(destFolder string, f archives.FileInfo) error {
	name := norm.NFC.String(f.NameInArchive)
	target := filepath.Join(destFolder, filepath.FromSlash(name))

	if f.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer w.Close()

	_, err = io.Copy(w, r)
	return err
}

// collectFiles walks folder, building the disk-path -> archive-name map
// archives.FilesFromDisk expects. Entry names are normalised to NFC so
// archives produced on macOS and Linux compare byte-equal; paths ending
// in any of excludedEndings are omitted.
func collectFiles(folder string, excludedEndings []string) (map[string]string, error) {
	out := make(map[string]string)
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		relSlash := filepath.ToSlash(rel)
		for _, ending := range excludedEndings {
			if strings.HasSuffix(relSlash, ending) {
				return nil
			}
		}
		out[path] = norm.NFC.String(relSlash)
		return nil
	})
	if err != nil {
		return nil, vgaerr.NewIOFailure("archivecodec.collectFiles", err)
	}
	return out, nil
}
