package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaceData_Validate(t *testing.T) {
	tests := []struct {
		name    string
		face    FaceData
		wantErr bool
	}{
		{name: "valid box", face: FaceData{X: 10, Y: 20, Width: 100, Height: 120}},
		{name: "origin at zero", face: FaceData{X: 0, Y: 0, Width: 50, Height: 50}},
		{name: "zero width", face: FaceData{X: 10, Y: 10, Width: 0, Height: 50}, wantErr: true},
		{name: "negative height", face: FaceData{X: 10, Y: 10, Width: 50, Height: -1}, wantErr: true},
		{name: "NaN x", face: FaceData{X: math.NaN(), Y: 10, Width: 50, Height: 50}, wantErr: true},
		{name: "infinite width", face: FaceData{X: 1, Y: 1, Width: math.Inf(1), Height: 50}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.face.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFaceData)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDetection_ToPixels(t *testing.T) {
	d := Detection{XCenter: 0.5, YCenter: 0.5, Width: 0.25, Height: 0.5, Confidence: 0.93}

	face := d.ToPixels(640, 480)

	assert.Equal(t, 240.0, face.X)
	assert.Equal(t, 120.0, face.Y)
	assert.Equal(t, 160.0, face.Width)
	assert.Equal(t, 240.0, face.Height)
	require.NotNil(t, face.Confidence)
	assert.InDelta(t, 0.93, *face.Confidence, 1e-9)
}

func TestNewCapture(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.FixedZone("BRT", -3*3600))
	confidence := 0.8

	c := NewCapture("abc", ts, "smile_20240309_140507.png",
		&FaceData{X: 1, Y: 2, Width: 3, Height: 4, Confidence: &confidence},
		Metadata{OriginalName: "frame.jpg"})

	assert.Equal(t, "2024-03-09T17:05:07.123Z", c.Timestamp)
	require.NotNil(t, c.Confidence)
	assert.Equal(t, 0.8, *c.Confidence)
	assert.False(t, c.IsAutoCapture)
	assert.Nil(t, c.CroppedPath)

	plain := NewCapture("def", ts, "x.png", nil, Metadata{})
	assert.Nil(t, plain.Confidence)
	assert.Nil(t, plain.FaceCoordinates)
}
