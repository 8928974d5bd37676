package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kdimtricp/photobooth/internal/captures"
	"github.com/kdimtricp/photobooth/internal/database"
	"github.com/kdimtricp/photobooth/internal/imaging"
	"github.com/kdimtricp/photobooth/internal/metrics"
	"github.com/kdimtricp/photobooth/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Captures *storage.LocalStorage
	Uploads  *storage.LocalStorage
}

func setupTestServer(t *testing.T, maxUploadSize int64) *testServer {
	t.Helper()

	tempDir := t.TempDir()

	uploads, err := storage.NewLocalStorage(filepath.Join(tempDir, "uploads"))
	require.NoError(t, err)
	captureStore, err := storage.NewLocalStorage(filepath.Join(tempDir, "captures"))
	require.NoError(t, err)

	db, err := database.NewDB(database.Config{SQLitePath: filepath.Join(tempDir, "test.db")})
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	m := metrics.New()

	service := captures.NewService(captures.Options{
		Uploads:   uploads,
		Captures:  captureStore,
		Repo:      database.NewCaptureRepository(db),
		Metrics:   m,
		Logger:    logger,
		Limits:    captures.Limits{DefaultLimit: 10, MaxLimit: 100},
	})

	app := &App{
		Captures:       service,
		Storage:        captureStore,
		Metrics:        m,
		Logger:         logger,
		MaxUploadSize:  maxUploadSize,
		StaticPrefix:   "/captures",
		AllowedOrigins: []string{"*"},
	}

	server := httptest.NewServer(NewRouter(app))
	t.Cleanup(func() {
		server.Close()
		db.Close()
	})

	return &testServer{Server: server, DB: db, Captures: captureStore, Uploads: uploads}
}

func (ts *testServer) countCaptures(t *testing.T) int {
	t.Helper()

	var n int
	require.NoError(t, ts.DB.Conn().QueryRow("SELECT COUNT(*) FROM captures").Scan(&n))
	return n
}

type part struct {
	filename    string
	contentType string
	content     []byte
}

func createMultipartUpload(file *part, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, file.filename))
		h.Set("Content-Type", file.contentType)
		w, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(w, bytes.NewReader(file.content)); err != nil {
			return nil, "", err
		}
	}

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func (ts *testServer) upload(t *testing.T, file *part, fields map[string]string) *http.Response {
	t.Helper()

	body, contentType, err := createMultipartUpload(file, fields)
	require.NoError(t, err)

	resp, err := http.Post(ts.Server.URL+"/api/captures", contentType, body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func jpegPart(t *testing.T) *part {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return &part{filename: "webcam.jpg", contentType: "image/jpeg", content: buf.Bytes()}
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, 10<<20)

	resp, err := http.Get(ts.Server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))
}

func TestUploadWithoutFace(t *testing.T) {
	ts := setupTestServer(t, 10<<20)

	resp := ts.upload(t, jpegPart(t), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[uploadResponse](t, resp)
	assert.True(t, body.Success)
	assert.Equal(t, "Image uploaded successfully", body.Message)
	assert.Equal(t, "webcam.jpg", body.Data.OriginalName)
	assert.False(t, body.Data.FaceProcessed)
	assert.Equal(t, ".jpg", filepath.Ext(body.Data.Filename))
	assert.NotEmpty(t, body.Data.ID)
	assert.Equal(t, 1, ts.countCaptures(t))

	static, err := http.Get(ts.Server.URL + "/captures/" + body.Data.Filename)
	require.NoError(t, err)
	defer static.Body.Close()
	assert.Equal(t, http.StatusOK, static.StatusCode)
}

func TestUploadWithFace(t *testing.T) {
	ts := setupTestServer(t, 10<<20)

	resp := ts.upload(t, jpegPart(t), map[string]string{
		"faceCoordinates": `{"x":110,"y":60,"width":100,"height":120,"confidence":0.87}`,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[uploadResponse](t, resp)
	assert.True(t, body.Data.FaceProcessed)
	assert.Regexp(t, `^smile_\d{8}_\d{6}(_[0-9a-f]{8})?\.png$`, body.Data.Filename)

	entries, err := os.ReadDir(ts.Uploads.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary upload must be removed")

	static, err := http.Get(ts.Server.URL + "/captures/" + body.Data.Filename)
	require.NoError(t, err)
	defer static.Body.Close()
	require.Equal(t, http.StatusOK, static.StatusCode)

	img, err := png.Decode(static.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, imaging.CanonicalSize, imaging.CanonicalSize), img.Bounds())
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Zero(t, a, "corner must be transparent")

	get, err := http.Get(ts.Server.URL + "/api/captures/" + body.Data.ID)
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	stored := decode[map[string]any](t, get)
	assert.Equal(t, 0.87, stored["confidence"])
	assert.Equal(t, false, stored["is_auto_capture"])
	assert.Nil(t, stored["cropped_path"])
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		file       *part
		fields     map[string]string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing image",
			fields:     map[string]string{"faceCoordinates": `{"x":1,"y":1,"width":2,"height":2}`},
			wantStatus: http.StatusBadRequest,
			wantError:  "No image file provided",
		},
		{
			name:       "text file",
			file:       &part{filename: "notes.txt", contentType: "text/plain", content: []byte("not an image")},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid file type",
		},
		{
			name:       "malformed face coordinates",
			file:       &part{filename: "a.jpg", contentType: "image/jpeg", content: []byte{0xff, 0xd8, 0xff}},
			fields:     map[string]string{"faceCoordinates": `{"x":`},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid face coordinates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t, 10<<20)

			resp := ts.upload(t, tt.file, tt.fields)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			body := decode[errorResponse](t, resp)
			assert.Equal(t, tt.wantError, body.Error)
			assert.NotEmpty(t, body.Message)
			assert.Zero(t, ts.countCaptures(t))
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	ts := setupTestServer(t, 1024)

	resp := ts.upload(t, &part{filename: "big.jpg", contentType: "image/jpeg", content: bytes.Repeat([]byte{0xaa}, 8*1024)}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "File too large", decode[errorResponse](t, resp).Error)
	assert.Zero(t, ts.countCaptures(t))
}

func TestUploadDuplicateID(t *testing.T) {
	ts := setupTestServer(t, 10<<20)

	first := ts.upload(t, jpegPart(t), map[string]string{"id": "booth-7"})
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second := ts.upload(t, jpegPart(t), map[string]string{"id": "booth-7"})
	assert.Equal(t, http.StatusConflict, second.StatusCode)
	assert.Equal(t, 1, ts.countCaptures(t))
}

func TestListCaptures(t *testing.T) {
	ts := setupTestServer(t, 10<<20)

	stamps := []string{"2024-03-01T10:00:00Z", "2024-03-02T10:00:00Z", "2024-03-03T10:00:00Z"}
	for i, stamp := range stamps {
		resp := ts.upload(t, jpegPart(t), map[string]string{"id": fmt.Sprintf("c%d", i), "timestamp": stamp})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	t.Run("paged newest first", func(t *testing.T) {
		resp, err := http.Get(ts.Server.URL + "/api/captures?page=1&limit=2")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[listResponse](t, resp)
		require.Len(t, body.Data, 2)
		assert.Equal(t, "c2", body.Data[0].ID)
		assert.Equal(t, "c1", body.Data[1].ID)
		assert.Equal(t, listMetadata{TotalItems: 3, TotalPages: 2, CurrentPage: 1, Limit: 2}, body.Metadata)
	})

	t.Run("date range", func(t *testing.T) {
		resp, err := http.Get(ts.Server.URL + "/api/captures?startDate=2024-03-02&endDate=2024-03-02")
		require.NoError(t, err)
		defer resp.Body.Close()

		body := decode[listResponse](t, resp)
		require.Len(t, body.Data, 1)
		assert.Equal(t, "c1", body.Data[0].ID)
	})

	t.Run("page past the end", func(t *testing.T) {
		resp, err := http.Get(ts.Server.URL + "/api/captures?page=9")
		require.NoError(t, err)
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(raw), `{"data":[]`), string(raw))
	})

	t.Run("bad date", func(t *testing.T) {
		resp, err := http.Get(ts.Server.URL + "/api/captures?startDate=yesterday")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetCaptureNotFound(t *testing.T) {
	ts := setupTestServer(t, 10<<20)

	resp, err := http.Get(ts.Server.URL + "/api/captures/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Capture not found", decode[errorResponse](t, resp).Error)
}

func TestMetricsAndCORS(t *testing.T) {
	ts := setupTestServer(t, 10<<20)
	require.Equal(t, http.StatusCreated, ts.upload(t, jpegPart(t), nil).StatusCode)

	resp, err := http.Get(ts.Server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `photobooth_captures_ingested_total{mode="none"} 1`)

	req, err := http.NewRequest(http.MethodOptions, ts.Server.URL+"/api/captures", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer preflight.Body.Close()
	assert.Equal(t, "*", preflight.Header.Get("Access-Control-Allow-Origin"))
}

func TestWriteErrorHidesInternalFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	app := &App{Logger: logger}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/captures/x", nil)
	app.writeError(rec, req, assert.AnError, "Failed to load capture. Please try again.")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"Internal server error"`)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	app := &App{Logger: logger}

	rec := httptest.NewRecorder()
	app.writeJSON(rec, http.StatusOK, map[string]any{"unencodable": make(chan int)})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, "Failed to write response body", hook.LastEntry().Message)
}
