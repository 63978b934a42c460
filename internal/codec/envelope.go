// Package codec rewrites document bytes: it burns annotation and OCR layers
// into PDF pages, embeds the metadata envelope, and sanitizes restricted
// documents into plain containers. Every operation is all-or-nothing: it
// returns complete new bytes or an error, never a partially written file.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lectorium/lectorium/internal/models"
)

// Sentinel tags the envelope inside the document's keyword metadata field.
// This exact string is a wire format: documents already in circulation carry
// it, so it must never change.
const Sentinel = "LECTORIUM_META:"

// EncodeEnvelope serializes the envelope for the keyword field.
func EncodeEnvelope(env *models.Envelope) (string, error) {
	if env.LectoriumV == "" {
		env.LectoriumV = models.EnvelopeVersion
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	return Sentinel + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeEnvelope locates the sentinel inside a keyword field and parses the
// envelope after it. A missing sentinel is not an error: the document simply
// carries no embedded layers.
func DecodeEnvelope(keywords string) (*models.Envelope, bool, error) {
	idx := strings.Index(keywords, Sentinel)
	if idx < 0 {
		return nil, false, nil
	}
	payload := keywords[idx+len(Sentinel):]

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, true, fmt.Errorf("failed to decode envelope: %w", err)
	}
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, true, fmt.Errorf("failed to parse envelope: %w", err)
	}
	return &env, true, nil
}

// ExtractEnvelope reads the envelope out of a document's keyword metadata.
// Returns found=false when the document carries no envelope. Protected
// documents need the password that would unlock them for reading.
func ExtractEnvelope(data []byte, password string) (*models.Envelope, bool, error) {
	doc, err := parseFor(data, password)
	if err != nil {
		return nil, false, err
	}
	info := doc.Info()
	if info == nil {
		return nil, false, nil
	}
	keywords, _ := doc.String(info["Keywords"])
	return DecodeEnvelope(string(keywords))
}

// stripEnvelope removes a prior envelope (and the separator before it) from
// a keyword field so repeated burns do not grow it without bound.
func stripEnvelope(keywords string) string {
	idx := strings.Index(keywords, Sentinel)
	if idx < 0 {
		return keywords
	}
	return strings.TrimRight(keywords[:idx], " ")
}
