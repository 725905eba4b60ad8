// Package controlrecord reads and writes the small XML descriptor that
// marks a working area (and, once packed, an archive) as a valid
// versioned-file document.
package controlrecord

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/miho/vgitarchive/internal/vgaerr"
)

// FileName is the control record's fixed relative path inside the
// working area and, once packed, inside the archive.
const FileName = ".versioned-file-info.xml"

// versionPattern implements the grammar N(.N)*(.x)? with a bare "x"
// also accepted as a trailing wildcard on its own.
var versionPattern = regexp.MustCompile(`^(\d+(\.\d+)*(\.x)?|x)$`)

// Record is the control record's structured content: a format version
// string and a human description.
type Record struct {
	XMLName     xml.Name `xml:"versioned-file-info"`
	Version     string   `xml:"version"`
	Description string   `xml:"description"`
}

// ValidateVersion reports whether v matches the control record's version
// grammar: ^\d+(\.\d+)*(\.x)?$, with a bare "x" also accepted.
func ValidateVersion(v string) bool {
	if v == "" {
		return false
	}
	return versionPattern.MatchString(v)
}

// New builds a Record, validating the version string against the
// grammar.
func New(version, description string) (Record, error) {
	if !ValidateVersion(version) {
		return Record{}, fmt.Errorf("controlrecord: %w: version %q does not match grammar", vgaerr.ErrInvalidArgument, version)
	}
	return Record{Version: version, Description: description}, nil
}

// Path returns the control record's path under workingArea.
func Path(workingArea string) string {
	return filepath.Join(workingArea, FileName)
}

// Write serializes rec to the control record path under workingArea,
// creating the file if absent and truncating it otherwise.
func Write(workingArea string, rec Record) error {
	data, err := xml.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("controlrecord: marshal: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	if err := os.WriteFile(Path(workingArea), data, 0o644); err != nil {
		return vgaerr.NewIOFailure("controlrecord.Write", err)
	}
	return nil
}

// Read loads and validates the control record under workingArea. A
// missing file or a version string that fails the grammar both surface
// as vgaerr.ErrInvalidArchive: absence means the working area is not a
// valid versioned archive.
func Read(workingArea string) (Record, error) {
	data, err := os.ReadFile(Path(workingArea))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("controlrecord: %w: missing %s", vgaerr.ErrInvalidArchive, FileName)
		}
		return Record{}, vgaerr.NewIOFailure("controlrecord.Read", err)
	}

	var rec Record
	if err := xml.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("controlrecord: %w: malformed %s: %v", vgaerr.ErrInvalidArchive, FileName, err)
	}
	if !ValidateVersion(rec.Version) {
		return Record{}, fmt.Errorf("controlrecord: %w: version %q does not match grammar", vgaerr.ErrInvalidArchive, rec.Version)
	}
	return rec, nil
}

// Exists reports whether a control record is present under workingArea,
// without validating its content.
func Exists(workingArea string) bool {
	_, err := os.Stat(Path(workingArea))
	return err == nil
}
