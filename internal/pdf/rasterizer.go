package pdf

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/observability"
)

// Rasterizer renders the first page of each flyer to a JPEG using go-fitz
type Rasterizer struct {
	outputDir string
	quality   int
	dpi       float64
	validator *Validator
	logger    *observability.Logger
}

// Options configures a Rasterizer
type Options struct {
	OutputDir string
	Quality   int
	DPI       float64 // 0 uses the MuPDF default resolution
}

// NewRasterizer creates a rasterizer writing into opts.OutputDir
func NewRasterizer(opts Options, logger *observability.Logger) (*Rasterizer, error) {
	validator := NewValidator()
	if err := validator.ValidateQuality(opts.Quality); err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		return nil, domain.ConfigError("raster output directory is required", nil)
	}
	if logger == nil {
		logger = observability.Nop()
	}

	return &Rasterizer{
		outputDir: opts.OutputDir,
		quality:   opts.Quality,
		dpi:       opts.DPI,
		validator: validator,
		logger:    logger.WithOperation("rasterize"),
	}, nil
}

// ImageName returns the file name for the document at a 1-based position
func ImageName(doc domain.Document, position int) string {
	return fmt.Sprintf("%s_page_%02d.jpg", doc.BaseName(), position)
}

// Rasterize renders page one of every document, in order. Any open or render
// failure aborts the whole batch.
func (r *Rasterizer) Rasterize(ctx context.Context, docs []domain.Document) ([]domain.RasterImage, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return nil, domain.IOError("Failed to create output directory", err)
	}

	images := make([]domain.RasterImage, 0, len(docs))
	for i, doc := range docs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		position := i + 1
		img, err := r.renderFirstPage(doc)
		if err != nil {
			return nil, err
		}

		outputPath := filepath.Join(r.outputDir, ImageName(doc, position))
		if err := r.writeJPEG(outputPath, img); err != nil {
			return nil, err
		}

		bounds := img.Bounds()
		images = append(images, domain.RasterImage{
			Position:   position,
			SourceName: doc.Name,
			Path:       outputPath,
			PageIndex:  0,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})

		r.logger.Debug().Str("document", doc.Name).Str("image", outputPath).Int("position", position).Msg("Rendered first page")
	}

	return images, nil
}

func (r *Rasterizer) renderFirstPage(doc domain.Document) (image.Image, error) {
	if err := r.validator.ValidateDocument(doc); err != nil {
		return nil, err
	}
	if r.validator.Oversized(doc) {
		r.logger.Warn().Str("document", doc.Name).Msg("Document is very large, rendering may take a while")
	}

	var (
		fd  *fitz.Document
		err error
	)
	if len(doc.Content) > 0 {
		fd, err = fitz.NewFromMemory(doc.Content)
	} else {
		fd, err = fitz.New(doc.Path)
	}
	if err != nil {
		return nil, domain.ConversionError(fmt.Sprintf("Failed to open %s", doc.Name), err)
	}
	defer fd.Close()

	if fd.NumPage() == 0 {
		return nil, domain.ConversionError(fmt.Sprintf("%s has no pages", doc.Name), nil)
	}

	var img image.Image
	if r.dpi > 0 {
		img, err = fd.ImageDPI(0, r.dpi)
	} else {
		img, err = fd.Image(0)
	}
	if err != nil {
		return nil, domain.ConversionError(fmt.Sprintf("Failed to render first page of %s", doc.Name), err)
	}
	return img, nil
}

func (r *Rasterizer) writeJPEG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return domain.IOError(fmt.Sprintf("Failed to create %s", path), err)
	}

	err = jpeg.Encode(out, img, &jpeg.Options{Quality: r.quality})
	closeErr := out.Close()
	if err != nil {
		return domain.ConversionError(fmt.Sprintf("Failed to encode %s", path), err)
	}
	if closeErr != nil {
		return domain.IOError(fmt.Sprintf("Failed to write %s", path), closeErr)
	}
	return nil
}
