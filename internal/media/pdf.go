package media

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// renderPDFPage rasterizes one page of a PDF promo asset at the given DPI.
func renderPDFPage(path string, page int, dpi float64) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	if page < 0 || page >= doc.NumPage() {
		return nil, fmt.Errorf("%s has %d page(s), wanted page %d", path, doc.NumPage(), page+1)
	}
	return doc.ImageDPI(page, dpi)
}
