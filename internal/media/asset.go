package media

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
)

const assetDPI = 150

// LoadImage decodes a PNG/JPEG still or the first page of a PDF.
func LoadImage(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return renderPDFPage(path, 0, assetDPI)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
