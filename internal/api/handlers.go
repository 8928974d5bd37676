package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/photobooth/internal/captures"
	"github.com/kdimtricp/photobooth/internal/metrics"
	"github.com/kdimtricp/photobooth/internal/models"
	"github.com/kdimtricp/photobooth/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	imageField           = "image"
	faceCoordinatesField = "faceCoordinates"

	// Multipart parts beyond this are spooled to temporary files.
	multipartMemory = 8 << 20
)

type App struct {
	Captures       *captures.Service
	Storage        storage.Storage
	Metrics        *metrics.Metrics
	Logger         logrus.FieldLogger
	MaxUploadSize  int64
	StaticPrefix   string
	AllowedOrigins []string
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadData struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	OriginalName  string `json:"originalName"`
	Size          int64  `json:"size"`
	Timestamp     string `json:"timestamp"`
	FaceProcessed bool   `json:"faceProcessed"`
}

type uploadResponse struct {
	Success bool       `json:"success"`
	Data    uploadData `json:"data"`
	Message string     `json:"message"`
}

func (app *App) UploadCaptureHandler(w http.ResponseWriter, r *http.Request) {
	const failedMessage = "Failed to upload image. Please try again."

	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			app.writeErrorBody(w, http.StatusRequestEntityTooLarge, "File too large",
				"Image exceeds the maximum upload size of "+strconv.FormatInt(app.MaxUploadSize, 10)+" bytes")
			return
		}
		app.writeError(w, r, captures.ErrNoImage(), failedMessage)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		app.writeError(w, r, captures.ErrNoImage(), failedMessage)
		return
	}
	if err != nil {
		app.writeError(w, r, err, failedMessage)
		return
	}
	defer file.Close()

	face, err := parseFaceCoordinates(r.FormValue(faceCoordinatesField))
	if err != nil {
		app.writeError(w, r, err, failedMessage)
		return
	}

	result, err := app.Captures.Ingest(r.Context(), captures.Upload{
		File:            file,
		Filename:        header.Filename,
		ContentType:     header.Header.Get("Content-Type"),
		Size:            header.Size,
		FaceCoordinates: face,
		ID:              r.FormValue("id"),
		Timestamp:       r.FormValue("timestamp"),
	})
	if err != nil {
		app.writeError(w, r, err, failedMessage)
		return
	}

	app.writeJSON(w, http.StatusCreated, uploadResponse{
		Success: true,
		Data: uploadData{
			ID:            result.Capture.ID,
			Filename:      result.Capture.OriginalPath,
			OriginalName:  result.Capture.Metadata.OriginalName,
			Size:          result.Capture.Metadata.Size,
			Timestamp:     result.Capture.Timestamp,
			FaceProcessed: result.FaceProcessed,
		},
		Message: "Image uploaded successfully",
	})
}

// parseFaceCoordinates decodes the optional JSON face box. An empty value and
// a literal null both mean no box.
func parseFaceCoordinates(raw string) (*models.FaceData, error) {
	if raw == "" {
		return nil, nil
	}

	var face *models.FaceData
	if err := json.Unmarshal([]byte(raw), &face); err != nil {
		return nil, captures.ErrInvalidFaceCoordinates("faceCoordinates must be a JSON object with x, y, width and height")
	}

	return face, nil
}

type listMetadata struct {
	TotalItems  int `json:"totalItems"`
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
}

type listResponse struct {
	Data     []*models.Capture `json:"data"`
	Metadata listMetadata      `json:"metadata"`
}

func (app *App) ListCapturesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := app.Captures.List(r.Context(), captures.ListParams{
		Page:      atoiOrZero(query.Get("page")),
		Limit:     atoiOrZero(query.Get("limit")),
		StartDate: query.Get("startDate"),
		EndDate:   query.Get("endDate"),
	})
	if err != nil {
		app.writeError(w, r, err, "Failed to load captures. Please try again.")
		return
	}

	data := page.Captures
	if data == nil {
		data = []*models.Capture{}
	}

	app.writeJSON(w, http.StatusOK, listResponse{
		Data: data,
		Metadata: listMetadata{
			TotalItems:  page.TotalItems,
			TotalPages:  page.TotalPages,
			CurrentPage: page.CurrentPage,
			Limit:       page.Limit,
		},
	})
}

func (app *App) GetCaptureHandler(w http.ResponseWriter, r *http.Request) {
	capture, err := app.Captures.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		app.writeError(w, r, err, "Failed to load capture. Please try again.")
		return
	}

	app.writeJSON(w, http.StatusOK, capture)
}

// atoiOrZero maps unparseable paging values to zero, which the service
// replaces with its defaults.
func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
