package models

import (
	"errors"
	"math"
	"time"
)

// TimestampLayout is the ISO-8601 form captures are stored and compared in.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var ErrInvalidFaceData = errors.New("invalid face data")

// FaceData is a face bounding box in pixel coordinates of the uploaded image.
type FaceData struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func (f FaceData) Validate() error {
	for _, v := range []float64{f.X, f.Y, f.Width, f.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidFaceData
		}
	}
	if f.Width <= 0 || f.Height <= 0 {
		return ErrInvalidFaceData
	}
	return nil
}

// Detection is a face as reported by the client-side detector, with all
// geometry expressed as fractions of the frame size.
type Detection struct {
	XCenter    float64 `json:"xCenter"`
	YCenter    float64 `json:"yCenter"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// ToPixels converts a normalized detection to a pixel box for a frame of the
// given size.
func (d Detection) ToPixels(frameWidth, frameHeight int) FaceData {
	w := d.Width * float64(frameWidth)
	h := d.Height * float64(frameHeight)
	confidence := d.Confidence
	return FaceData{
		X:          math.Round(d.XCenter*float64(frameWidth) - w/2),
		Y:          math.Round(d.YCenter*float64(frameHeight) - h/2),
		Width:      math.Round(w),
		Height:     math.Round(h),
		Confidence: &confidence,
	}
}

type Metadata struct {
	OriginalName   string `json:"originalName"`
	Size           int64  `json:"size"`
	MimeType       string `json:"mimetype"`
	Processed      bool   `json:"processed"`
	ProcessedBy    string `json:"processedBy,omitempty"`
	PerceptualHash string `json:"perceptualHash,omitempty"`
}

const (
	ProcessedByServer = "server"
	ProcessedByClient = "client"
)

type Capture struct {
	ID              string    `json:"id"`
	Timestamp       string    `json:"timestamp"`
	OriginalPath    string    `json:"original_path"`
	CroppedPath     *string   `json:"cropped_path"`
	FaceCoordinates *FaceData `json:"face_coordinates"`
	Confidence      *float64  `json:"confidence"`
	IsAutoCapture   bool      `json:"is_auto_capture"`
	Metadata        Metadata  `json:"metadata"`
}

// NewCapture builds a manual capture record. Confidence is copied out of the
// face box so it can be queried on its own.
func NewCapture(id string, ts time.Time, filename string, face *FaceData, meta Metadata) *Capture {
	c := &Capture{
		ID:              id,
		Timestamp:       FormatTimestamp(ts),
		OriginalPath:    filename,
		FaceCoordinates: face,
		Metadata:        meta,
	}
	if face != nil && face.Confidence != nil {
		confidence := *face.Confidence
		c.Confidence = &confidence
	}
	return c
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
