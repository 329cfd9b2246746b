package preview

import (
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/zombor/clubhouse/internal/club"
)

// DefaultWidth is the thumbnail width used on request cards
const DefaultWidth = 480

// Render decodes an attachment and returns a PNG no wider than maxWidth.
// Smaller images are not scaled up.
func Render(img club.Image, maxWidth int) ([]byte, error) {
	data, err := img.Bytes()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %q is empty", img.Name)
	}

	decoded, err := Decode(data, ContentType(data, img.Name))
	if err != nil {
		return nil, fmt.Errorf("rendering %q: %w", img.Name, err)
	}

	if maxWidth <= 0 {
		maxWidth = DefaultWidth
	}
	bounds := decoded.Bounds()
	if bounds.Dx() > maxWidth {
		// Fit keeps the aspect ratio, so the height bound only has to be generous
		decoded = imaging.Fit(decoded, maxWidth, bounds.Dy(), imaging.Lanczos)
	}
	return encodePNG(decoded)
}
