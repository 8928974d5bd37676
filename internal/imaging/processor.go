package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF support
	_ "image/jpeg" // JPEG support
	"image/png"
	"io"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/photobooth/internal/models"
	"github.com/kdimtricp/photobooth/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WEBP support
)

var (
	ErrDecode = errors.New("failed to decode image")
	ErrEncode = errors.New("failed to encode image")
	ErrWrite  = errors.New("failed to write capture")
)

// ProcessingError tags every failure of the capture transform. Callers are
// expected to recover from it by keeping the unprocessed upload.
type ProcessingError struct {
	Reason string
	Err    error
}

func (e *ProcessingError) Error() string {
	return "capture processing failed: " + e.Reason
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func processingError(err error) error {
	return &ProcessingError{Reason: err.Error(), Err: err}
}

type Output struct {
	Filename       string
	PerceptualHash string
}

// Processor writes its results into the capture storage.
type Processor struct {
	store     storage.Storage
	now       func() time.Time
	logger    logrus.FieldLogger
	maxPixels int64
}

func NewProcessor(store storage.Storage, logger logrus.FieldLogger) *Processor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Processor{
		store:     store,
		now:       time.Now,
		logger:    logger,
		maxPixels: DefaultMaxPixels,
	}
}

// WithClock replaces the time source used for output filenames.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// WithMaxPixels sets the largest width*height the processor will decode.
func (p *Processor) WithMaxPixels(n int64) *Processor {
	if n > 0 {
		p.maxPixels = n
	}
	return p
}

// Transform crops the padded face square out of src, resizes it to the
// canonical size and cuts out everything outside the circular mask.
func Transform(src image.Image, face models.FaceData) (*image.RGBA, error) {
	crop, err := ComputeCrop(src.Bounds(), face)
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, CanonicalSize, CanonicalSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	applyCircleMask(dst)

	return dst, nil
}

// Process decodes src, transforms it around face and writes the PNG result
// into the capture storage. It returns the written file name relative to
// that storage. On failure no file is left behind.
func (p *Processor) Process(ctx context.Context, src io.ReadSeeker, face models.FaceData) (*Output, error) {
	if err := face.Validate(); err != nil {
		return nil, processingError(err)
	}

	if err := checkDimensions(src, p.maxPixels); err != nil {
		return nil, processingError(err)
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return nil, processingError(fmt.Errorf("%w: %w", ErrDecode, err))
	}

	if err := ctx.Err(); err != nil {
		return nil, processingError(err)
	}

	p.logger.WithFields(logrus.Fields{
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
		"face":   face,
	}).Debug("processing capture")

	out, err := Transform(img, face)
	if err != nil {
		return nil, processingError(err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, processingError(fmt.Errorf("%w: %w", ErrEncode, err))
	}

	if err := ctx.Err(); err != nil {
		return nil, processingError(err)
	}

	filename, err := p.write(buf.Bytes())
	if err != nil {
		return nil, processingError(fmt.Errorf("%w: %w", ErrWrite, err))
	}

	hash, err := PerceptualHash(out)
	if err != nil {
		p.logger.WithError(err).Warn("failed to hash capture")
	}

	return &Output{Filename: filename, PerceptualHash: hash}, nil
}

func (p *Processor) write(data []byte) (string, error) {
	base := "smile_" + p.now().Format("20060102_150405")

	filename := base + ".png"
	err := p.store.WriteFile(filename, data)
	if errors.Is(err, fs.ErrExist) {
		filename = fmt.Sprintf("%s_%s.png", base, uuid.New().String()[:8])
		err = p.store.WriteFile(filename, data)
	}
	if err != nil {
		return "", err
	}

	return filename, nil
}
