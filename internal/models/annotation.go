package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnnotationType discriminates the type-specific payload of an Annotation.
type AnnotationType string

const (
	AnnotationHighlight AnnotationType = "highlight"
	AnnotationNote      AnnotationType = "note"
	AnnotationInk       AnnotationType = "ink"
)

// Point is a vertex of an ink stroke in document-page coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BBox is a rectangle in document-page coordinate space (origin bottom-left).
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Annotation is a single overlay element on a document page.
//
// Once IsBurned is set the annotation has been physically rendered into the
// document's content stream and is immutable: update and remove decline.
type Annotation struct {
	ID          string         `json:"id"`
	Page        int            `json:"page"` // 1-based
	BBox        BBox           `json:"bbox"`
	Type        AnnotationType `json:"type"`
	Color       string         `json:"color,omitempty"`
	Opacity     float64        `json:"opacity,omitempty"`
	StrokeWidth float64        `json:"strokeWidth,omitempty"`
	Points      []Point        `json:"points,omitempty"` // ink only
	IsBurned    bool           `json:"isBurned"`
}

// NewAnnotationID generates an id for a locally authored annotation.
func NewAnnotationID() string {
	return fmt.Sprintf("ann-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// AuditRecord is the integrity detector's last-verified baseline for one
// document id.
type AuditRecord struct {
	FileID          string
	ContentHash     uint64
	LastModified    time.Time
	AnnotationCount int
}
