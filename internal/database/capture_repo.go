package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kdimtricp/photobooth/internal/models"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrCaptureNotFound = errors.New("capture not found")
	ErrDuplicateID     = errors.New("capture id already exists")
)

const captureColumns = `id, timestamp, original_path, cropped_path, face_coordinates,
	confidence, is_auto_capture, metadata`

// ListQuery selects one page of captures. StartDate and EndDate are inclusive
// bounds compared against the stored timestamp; empty means unbounded.
type ListQuery struct {
	Page      int
	Limit     int
	StartDate string
	EndDate   string
}

func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type Page struct {
	Captures    []*models.Capture
	TotalItems  int
	TotalPages  int
	CurrentPage int
	Limit       int
}

type CaptureRepository struct {
	db *DB
}

func NewCaptureRepository(db *DB) *CaptureRepository {
	return &CaptureRepository{db: db}
}

func (r *CaptureRepository) Insert(ctx context.Context, capture *models.Capture) error {
	var faceJSON sql.NullString
	if capture.FaceCoordinates != nil {
		data, err := json.Marshal(capture.FaceCoordinates)
		if err != nil {
			return fmt.Errorf("failed to marshal face coordinates: %w", err)
		}
		faceJSON = sql.NullString{String: string(data), Valid: true}
	}

	metadataJSON, err := json.Marshal(capture.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO captures (` + captureColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.conn.ExecContext(ctx, query,
		capture.ID,
		capture.Timestamp,
		capture.OriginalPath,
		capture.CroppedPath,
		faceJSON,
		capture.Confidence,
		capture.IsAutoCapture,
		string(metadataJSON),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", ErrDuplicateID, capture.ID)
		}
		return fmt.Errorf("failed to insert capture: %w", err)
	}

	return nil
}

func (r *CaptureRepository) GetByID(ctx context.Context, id string) (*models.Capture, error) {
	query := `SELECT ` + captureColumns + ` FROM captures WHERE id = ?`

	capture, err := scanCapture(r.db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}

	return capture, nil
}

func (r *CaptureRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM captures").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count captures: %w", err)
	}
	return count, nil
}

// List returns the requested page ordered newest first, along with the total
// number of matching captures.
func (r *CaptureRepository) List(ctx context.Context, q ListQuery) (*Page, error) {
	if q.Page < 1 || q.Limit < 1 {
		return nil, fmt.Errorf("invalid page %d or limit %d", q.Page, q.Limit)
	}

	where, args := timestampFilter(q.StartDate, q.EndDate)

	var total int
	if err := r.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM captures"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count captures: %w", err)
	}

	query := `SELECT ` + captureColumns + ` FROM captures` + where +
		` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.conn.QueryContext(ctx, query, append(args, q.Limit, q.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	captures := make([]*models.Capture, 0, q.Limit)
	for rows.Next() {
		capture, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		captures = append(captures, capture)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate captures: %w", err)
	}

	return &Page{
		Captures:    captures,
		TotalItems:  total,
		TotalPages:  (total + q.Limit - 1) / q.Limit,
		CurrentPage: q.Page,
		Limit:       q.Limit,
	}, nil
}

func timestampFilter(start, end string) (string, []any) {
	switch {
	case start != "" && end != "":
		return " WHERE timestamp BETWEEN ? AND ?", []any{start, end}
	case start != "":
		return " WHERE timestamp >= ?", []any{start}
	case end != "":
		return " WHERE timestamp <= ?", []any{end}
	default:
		return "", nil
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(row scanner) (*models.Capture, error) {
	var (
		capture      models.Capture
		croppedPath  sql.NullString
		faceJSON     sql.NullString
		confidence   sql.NullFloat64
		isAuto       sql.NullBool
		metadataJSON sql.NullString
	)

	err := row.Scan(
		&capture.ID,
		&capture.Timestamp,
		&capture.OriginalPath,
		&croppedPath,
		&faceJSON,
		&confidence,
		&isAuto,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	if croppedPath.Valid {
		capture.CroppedPath = &croppedPath.String
	}
	if confidence.Valid {
		capture.Confidence = &confidence.Float64
	}
	capture.IsAutoCapture = isAuto.Valid && isAuto.Bool

	if faceJSON.Valid && strings.TrimSpace(faceJSON.String) != "" {
		var face models.FaceData
		if err := json.Unmarshal([]byte(faceJSON.String), &face); err != nil {
			return nil, fmt.Errorf("failed to unmarshal face coordinates of %s: %w", capture.ID, err)
		}
		capture.FaceCoordinates = &face
	}

	if metadataJSON.Valid && strings.TrimSpace(metadataJSON.String) != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &capture.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of %s: %w", capture.ID, err)
		}
	}

	return &capture, nil
}
