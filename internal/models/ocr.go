package models

import (
	"fmt"
	"time"
)

// OcrWord is one recognized word with its bounding box on the page.
type OcrWord struct {
	Text string  `json:"text"`
	BBox BBox    `json:"bbox"`
	Conf float64 `json:"conf,omitempty"`
}

// OcrRecord holds recognized words for one document page, plus the optional
// AI-derived structured text. Keyed in the store by "<fileId>-<page>".
type OcrRecord struct {
	FileID      string
	Page        int
	Words       []OcrWord
	Markdown    string // AI-derived semantic text, empty if not processed
	ProcessedAt time.Time
}

// OcrKey builds the cache key for one document page.
func OcrKey(fileID string, page int) string {
	return fmt.Sprintf("%s-%d", fileID, page)
}

// SemanticPage is the per-page entry of the metadata envelope's semantic map.
type SemanticPage struct {
	Markdown    string `json:"markdown"`
	ProcessedAt int64  `json:"processedAt"` // epoch-ms
}

// DocVersion is an immutable snapshot of a document's content. Retention is
// capped at VersionRetention most recent snapshots per document.
type DocVersion struct {
	ID        string
	FileID    string
	Timestamp time.Time
	Author    string
	Content   []byte
	Name      string
}

// VersionRetention is the per-document snapshot cap; oldest evicted first.
const VersionRetention = 50
