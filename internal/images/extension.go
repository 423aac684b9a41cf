package images

import (
	"errors"
	"mime"
	"net/url"
	"strings"
)

// ErrUnknownExtension is returned when neither the content type nor the URL
// identifies the file type.
var ErrUnknownExtension = errors.New("cannot determine file extension")

// maxExtensionLength bounds extensions taken from a URL.
const maxExtensionLength = 5

// extensions maps image media types to file extensions.
var extensions = map[string]string{
	"image/gif":     "gif",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/png":     "png",
	"image/svg+xml": "svg",
	"image/webp":    "webp",
	"image/tiff":    "tif",
	"image/tif":     "tif",
	"image/avif":    "avif",
	"image/bmp":     "bmp",
}

// ResolveExtension picks the extension for a downloaded file.
// The media type of contentType is looked up first; parameters are ignored.
// Otherwise the suffix after the last '.' of the final URL's last path
// segment is used if it is 1 to 5 characters long.
func ResolveExtension(contentType, finalURL string) (string, error) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := extensions[strings.ToLower(mediaType)]; ok {
			return ext, nil
		}
	}

	u, err := url.Parse(finalURL)
	if err != nil {
		return "", ErrUnknownExtension
	}
	segment := u.Path[strings.LastIndex(u.Path, "/")+1:]
	idx := strings.LastIndex(segment, ".")
	if idx < 0 {
		return "", ErrUnknownExtension
	}
	ext := segment[idx+1:]
	if ext == "" || len(ext) > maxExtensionLength {
		return "", ErrUnknownExtension
	}
	return strings.ToLower(ext), nil
}
