package report

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Branding is a logo image that loaded and decoded successfully.
type Branding struct {
	name      string
	imageType string
	data      []byte
}

var imageTypes = map[string]string{
	".png":  "PNG",
	".jpg":  "JPG",
	".jpeg": "JPG",
	".gif":  "GIF",
}

// LoadBranding reports whether a usable logo exists at path. A missing,
// unreadable or undecodable file yields (nil, false); reports are then
// rendered without it.
func LoadBranding(path string) (*Branding, bool) {
	if path == "" {
		return nil, false
	}
	imageType, ok := imageTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		slog.Debug("branding image has unsupported type, skipping", "path", path)
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Debug("branding image unavailable, skipping", "path", path, "error", err)
		return nil, false
	}
	b := &Branding{name: "branding" + strings.ToLower(filepath.Ext(path)), imageType: imageType, data: data}

	scratch := fpdf.New("P", "mm", "A4", "")
	b.register(scratch)
	if err := scratch.Error(); err != nil {
		slog.Debug("branding image cannot be decoded, skipping", "path", path, "error", err)
		return nil, false
	}
	return b, true
}

func (b *Branding) options() fpdf.ImageOptions {
	return fpdf.ImageOptions{ImageType: b.imageType}
}

func (b *Branding) register(pdf *fpdf.Fpdf) {
	pdf.RegisterImageOptionsReader(b.name, b.options(), bytes.NewReader(b.data))
}
