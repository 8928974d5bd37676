package captures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/kdimtricp/photobooth/internal/database"
	"github.com/kdimtricp/photobooth/internal/imaging"
	"github.com/kdimtricp/photobooth/internal/metrics"
	"github.com/kdimtricp/photobooth/internal/models"
	"github.com/kdimtricp/photobooth/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	MimeTypePNG         = "image/png"
	mimeTypeOctetStream = "application/octet-stream"
)

var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	MimeTypePNG:  true,
	"image/gif":  true,
	"image/webp": true,
}

type Repository interface {
	Insert(ctx context.Context, capture *models.Capture) error
	GetByID(ctx context.Context, id string) (*models.Capture, error)
	List(ctx context.Context, q database.ListQuery) (*database.Page, error)
}

type Transformer interface {
	Process(ctx context.Context, src io.ReadSeeker, face models.FaceData) (*imaging.Output, error)
}

// Upload is one image received from a client. ID and Timestamp are optional;
// when empty they are derived from the server clock.
type Upload struct {
	File            io.ReadSeeker
	Filename        string
	ContentType     string
	Size            int64
	FaceCoordinates *models.FaceData
	ID              string
	Timestamp       string
}

type Result struct {
	Capture       *models.Capture
	FaceProcessed bool
}

type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

type Service struct {
	uploads   storage.Storage
	captures  storage.Storage
	repo      Repository
	processor Transformer
	metrics   *metrics.Metrics
	logger    logrus.FieldLogger
	limits    Limits
	maxPixels int64
	now       func() time.Time
}

// Options configure a Service. When Processor is nil the service transforms
// with an imaging.Processor writing into Captures.
type Options struct {
	Uploads   storage.Storage
	Captures  storage.Storage
	Repo      Repository
	Processor Transformer
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
	Limits    Limits
	MaxPixels int64
}

func NewService(opts Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Limits.DefaultLimit == 0 {
		opts.Limits = Limits{DefaultLimit: 10, MaxLimit: 100}
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = imaging.DefaultMaxPixels
	}
	if opts.Processor == nil {
		opts.Processor = imaging.NewProcessor(opts.Captures, opts.Logger).WithMaxPixels(opts.MaxPixels)
	}

	return &Service{
		uploads:   opts.Uploads,
		captures:  opts.Captures,
		repo:      opts.Repo,
		processor: opts.Processor,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		limits:    opts.Limits,
		maxPixels: opts.MaxPixels,
		now:       time.Now,
	}
}

// Ingest stores one upload. With a face box the image is cropped and masked
// first; a failed transform keeps the original upload instead of failing the
// request.
func (s *Service) Ingest(ctx context.Context, up Upload) (*Result, error) {
	if up.File == nil {
		return nil, ErrNoImage()
	}

	mimeType, err := resolveMimeType(up)
	if err != nil {
		return nil, storageError("read upload", err)
	}
	if !allowedMimeTypes[mimeType] {
		return nil, ErrInvalidFileType(mimeType)
	}

	now := s.now()

	capturedAt := now
	if up.Timestamp != "" {
		capturedAt, err = time.Parse(time.RFC3339Nano, up.Timestamp)
		if err != nil {
			return nil, errInvalidTimestamp(up.Timestamp)
		}
	}

	id := strings.TrimSpace(up.ID)
	if id == "" {
		id = fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.New().String()[:8])
	}

	log := s.logger.WithFields(logrus.Fields{
		"capture_id":    id,
		"original_name": up.Filename,
		"mimetype":      mimeType,
		"size":          up.Size,
	})

	tempName, err := s.uploads.SaveFile(up.File, storage.FileInfo{
		Filename:    up.Filename,
		ContentType: mimeType,
		Size:        up.Size,
	})
	if err != nil {
		return nil, storageError("save upload", err)
	}

	stored, err := s.store(ctx, tempName, mimeType, up.FaceCoordinates, log)
	if err != nil {
		if delErr := s.uploads.DeleteFile(tempName); delErr != nil {
			log.WithError(delErr).Warn("Failed to clean up temporary file")
		}
		return nil, storageError("store capture", err)
	}

	capture := models.NewCapture(id, capturedAt, stored.filename, up.FaceCoordinates, models.Metadata{
		OriginalName:   up.Filename,
		Size:           up.Size,
		MimeType:       mimeType,
		Processed:      stored.mode != metrics.ModeNone,
		ProcessedBy:    processedBy(stored.mode),
		PerceptualHash: stored.hash,
	})

	if err := s.repo.Insert(ctx, capture); err != nil {
		if delErr := s.captures.DeleteFile(stored.filename); delErr != nil {
			log.WithError(delErr).Warn("Failed to remove capture file after insert failure")
		}
		if errors.Is(err, database.ErrDuplicateID) {
			return nil, errDuplicateID(id)
		}
		return nil, storageError("insert capture", err)
	}

	s.metrics.CaptureIngested(stored.mode, up.Size)
	log.WithFields(logrus.Fields{
		"filename": stored.filename,
		"mode":     stored.mode,
	}).Info("Capture stored")

	return &Result{Capture: capture, FaceProcessed: stored.mode != metrics.ModeNone}, nil
}

type storedFile struct {
	filename string
	mode     string
	hash     string
}

// store turns the temporary upload into a file in the capture directory.
func (s *Service) store(ctx context.Context, tempName, mimeType string, face *models.FaceData, log logrus.FieldLogger) (*storedFile, error) {
	switch {
	case mimeType == MimeTypePNG:
		// a PNG has already been cropped and masked by the client
		mode := metrics.ModeNone
		if face != nil {
			mode = metrics.ModeClient
		}
		return s.moveUpload(tempName, mode, log)

	case face != nil:
		out, err := s.transform(ctx, tempName, *face)
		if err != nil {
			s.metrics.ProcessingFailed()
			log.WithError(err).Warn("Image processing failed, storing original upload")
			return s.moveUpload(tempName, metrics.ModeNone, log)
		}

		if err := s.uploads.DeleteFile(tempName); err != nil {
			log.WithError(err).Warn("Failed to clean up temporary file")
		}
		return &storedFile{filename: out.Filename, mode: metrics.ModeServer, hash: out.PerceptualHash}, nil

	default:
		return s.moveUpload(tempName, metrics.ModeNone, log)
	}
}

func (s *Service) transform(ctx context.Context, tempName string, face models.FaceData) (*imaging.Output, error) {
	f, err := s.uploads.OpenFile(tempName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	start := time.Now()
	out, err := s.processor.Process(ctx, f, face)
	s.metrics.ObserveTransform(time.Since(start))

	return out, err
}

func (s *Service) moveUpload(tempName, mode string, log logrus.FieldLogger) (*storedFile, error) {
	filename, err := s.captures.MoveFrom(s.uploads, tempName)
	if err != nil {
		return nil, err
	}

	return &storedFile{filename: filename, mode: mode, hash: s.hashStored(filename, log)}, nil
}

func (s *Service) hashStored(filename string, log logrus.FieldLogger) string {
	f, err := s.captures.OpenFile(filename)
	if err != nil {
		log.WithError(err).Debug("Failed to open capture for hashing")
		return ""
	}
	defer f.Close()

	hash, err := imaging.HashReader(f, s.maxPixels)
	if errors.Is(err, imaging.ErrTooManyPixels) {
		log.WithError(err).Warn("Capture too large to hash, skipping perceptual hash")
		return ""
	}
	if err != nil {
		log.WithError(err).Debug("Failed to hash capture")
		return ""
	}

	return hash
}

func processedBy(mode string) string {
	switch mode {
	case metrics.ModeServer:
		return models.ProcessedByServer
	case metrics.ModeClient:
		return models.ProcessedByClient
	default:
		return ""
	}
}

// resolveMimeType trusts the declared content type unless it is missing or
// generic, in which case the content is sniffed.
func resolveMimeType(up Upload) (string, error) {
	declared := strings.ToLower(strings.TrimSpace(strings.Split(up.ContentType, ";")[0]))
	if declared != "" && declared != mimeTypeOctetStream {
		return declared, nil
	}

	detected, err := mimetype.DetectReader(up.File)
	if err != nil {
		return "", err
	}
	if _, err := up.File.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return strings.Split(detected.String(), ";")[0], nil
}
