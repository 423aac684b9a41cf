package images

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	"golang.org/x/crypto/sha3"

	"github.com/nao1215/sitegraph/internal/model"
)

// Inspection describes a saved image file.
type Inspection struct {
	Size int64
	SHA3 string
	Exif []model.ExifTag
}

// Inspect reads the file at path and returns its size, SHA3-256 digest and
// EXIF tags that identify the device, software, time or place of capture.
// Files without EXIF data are not an error.
func Inspect(path string) (*Inspection, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	sum := sha3.Sum256(data)
	return &Inspection{
		Size: int64(len(data)),
		SHA3: hex.EncodeToString(sum[:]),
		Exif: extractExif(data),
	}, nil
}

// InspectAll fills in size, digest and EXIF tags of every saved download.
// A file that cannot be read is skipped and its error joined into the
// returned error.
func InspectAll(downloads []model.Download) error {
	var errs []error
	for i := range downloads {
		if !downloads[i].Succeeded() {
			continue
		}
		in, err := Inspect(downloads[i].Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", downloads[i].ID, err))
			continue
		}
		downloads[i].Size = in.Size
		downloads[i].SHA3 = in.SHA3
		downloads[i].Exif = in.Exif
	}
	return errors.Join(errs...)
}

// extractExif returns the interesting EXIF tags of data, first value wins.
func extractExif(data []byte) []model.ExifTag {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil
	}

	var tags []model.ExifTag
	seen := make(map[string]bool)
	for _, entry := range entries {
		if !interestingTag(entry.TagName) || seen[entry.TagName] {
			continue
		}
		seen[entry.TagName] = true
		tags = append(tags, model.ExifTag{
			Name:  entry.TagName,
			Value: strings.TrimSpace(entry.Formatted),
		})
	}
	return tags
}

func interestingTag(name string) bool {
	switch name {
	case "Make", "Model", "Software", "Artist", "Copyright":
		return true
	}
	return strings.HasPrefix(name, "DateTime") || strings.HasPrefix(name, "GPS")
}
