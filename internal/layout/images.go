package layout

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

const (
	// PrintDPI is the resolution images are resampled to at column width.
	PrintDPI = 300

	defaultJPEGQuality = 90
	defaultMaxPixels   = 100 * 1000 * 1000 // 100 megapixels
)

// preparedImage is an image ready for the PDF: opaque, at print
// resolution, and JPEG encoded.
type preparedImage struct {
	name   string
	data   []byte
	width  int
	height int
}

// imagePreparer normalizes embedded images for print.
type imagePreparer struct {
	// maxWidth is the widest the image is kept, in pixels.
	maxWidth  int
	quality   int
	maxPixels int // Total pixel count limit for decode (width * height)
}

// newImagePreparer creates a preparer for a text column of the given
// width in points.
func newImagePreparer(columnWidth float64) *imagePreparer {
	return &imagePreparer{
		maxWidth:  int(math.Ceil(columnWidth / PointsPerInch * PrintDPI)),
		quality:   defaultJPEGQuality,
		maxPixels: defaultMaxPixels,
	}
}

// prepare decodes img, flattens any transparency onto white, downsamples
// it to maxWidth and re-encodes it as JPEG.
func (p *imagePreparer) prepare(img manuscript.Image) (*preparedImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}
	pixels := uint64(cfg.Width) * uint64(cfg.Height)
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("image has no pixels: %dx%d", cfg.Width, cfg.Height)
	}
	if p.maxPixels > 0 && pixels > uint64(p.maxPixels) {
		return nil, fmt.Errorf("image too large to decode: %dx%d (%d pixels)", cfg.Width, cfg.Height, pixels)
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	b := src.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, src, image.Pt(-b.Min.X, -b.Min.Y), 1.0)
	if p.maxWidth > 0 && flat.Bounds().Dx() > p.maxWidth {
		flat = imaging.Resize(flat, p.maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return &preparedImage{
		data:   buf.Bytes(),
		width:  flat.Bounds().Dx(),
		height: flat.Bounds().Dy(),
	}, nil
}

// prepareImages prepares every chapter image once for both layout passes.
// Images that fail are dropped from both.
func prepareImages(chapters []manuscript.Chapter, p *imagePreparer, log *slog.Logger) [][]*preparedImage {
	out := make([][]*preparedImage, len(chapters))
	n := 0
	for i, ch := range chapters {
		for j, img := range ch.Images {
			prepared, err := p.prepare(img)
			if err != nil {
				log.Debug("skipping image", "chapter", ch.Number, "index", j, "error", err)
				continue
			}
			n++
			prepared.name = fmt.Sprintf("img%03d", n)
			out[i] = append(out[i], prepared)
		}
	}
	return out
}
