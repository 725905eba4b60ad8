package archivecodec

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	szip "github.com/STARRY-S/zip"
	"github.com/klauspost/compress/flate"
	"golang.org/x/text/unicode/norm"

	"github.com/miho/vgitarchive/internal/vgaerr"
)

// Starry is an alternate ZIP codec backed by github.com/STARRY-S/zip, a
// drop-in archive/zip replacement with broader compression-method and
// Zip64 support than the standard library. Identifier "ZIP-STARRY".
type Starry struct{}

// NewStarry constructs the alternate codec.
func NewStarry() Starry { return Starry{} }

// Identifier implements Codec.
func (Starry) Identifier() string { return "ZIP-STARRY" }

// Pack implements Codec.
func (Starry) Pack(folder, destFile string, excludedEndings ...string) error {
	out, err := os.Create(destFile)
	if err != nil {
		return vgaerr.NewIOFailure("archivecodec.Starry.Pack: create", err)
	}
	defer out.Close()

	w := szip.NewWriter(out)
	defer w.Close()
	// Deflate is built into the zip package's global registry, so the
	// klauspost/compress writer is registered on this writer only.
	w.RegisterCompressor(szip.Deflate, func(dst io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(dst, flate.DefaultCompression)
	})

	walkErr := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		relSlash := norm.NFC.String(filepath.ToSlash(rel))
		for _, ending := range excludedEndings {
			if strings.HasSuffix(relSlash, ending) {
				return nil
			}
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		entry, err := w.Create(relSlash)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, src)
		return err
	})
	if walkErr != nil {
		return vgaerr.NewIOFailure("archivecodec.Starry.Pack: walk", walkErr)
	}
	return nil
}

// Unpack implements Codec.
func (Starry) Unpack(archive, destFolder string) error {
	r, err := szip.OpenReader(archive)
	if err != nil {
		return vgaerr.NewIOFailure("archivecodec.Starry.Unpack: open", err)
	}
	defer r.Close()

	if err := os.MkdirAll(destFolder, 0o755); err != nil {
		return vgaerr.NewIOFailure("archivecodec.Starry.Unpack: mkdir", err)
	}

	for _, f := range r.File {
		if err := extractStarryEntry(destFolder, f); err != nil {
			return vgaerr.NewIOFailure("archivecodec.Starry.Unpack: entry", err)
		}
	}
	return nil
}

func extractStarryEntry(destFolder string, f *szip.File) error {
	name := norm.NFC.String(f.Name)
	target := filepath.Join(destFolder, filepath.FromSlash(name))

	if strings.HasSuffix(f.Name, "/") {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, rc)
	return err
}
