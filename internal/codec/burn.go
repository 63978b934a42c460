package codec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/models"
	"github.com/lectorium/lectorium/internal/pdf"
)

// engineProducer is stamped into /Producer on every burn, with the previous
// producer preserved as a suffix.
const engineProducer = "Lectorium Engine/1.0"

// Resource names added to burned pages.
const (
	fontRes = "LectF"  // Helvetica, used for the invisible OCR text layer
	gsRes   = "LectGS" // ExtGState with the overlay alpha
)

func writeCoord(buf *bytes.Buffer, f float64) {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	buf.WriteString(s)
}

func escapeText(s string) string {
	var out bytes.Buffer
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch b {
		case '(', ')', '\\':
			out.WriteByte('\\')
			out.WriteByte(b)
		default:
			out.WriteByte(b)
		}
	}
	return out.String()
}

// hexColor parses "#RRGGBB" into unit RGB; bad input falls back to yellow.
func hexColor(s string) (r, g, b float64) {
	if len(s) == 7 && s[0] == '#' {
		if v, err := strconv.ParseUint(s[1:], 16, 32); err == nil {
			return float64(v>>16&0xff) / 255, float64(v >> 8 & 0xff) / 255, float64(v&0xff) / 255
		}
	}
	return 1, 1, 0
}

// ocrOverlay renders recognized words as invisible (render mode 3) text runs
// positioned by bounding box, so native search and selection work without
// changing visual appearance. Word coordinates arrive in UI space (origin
// top-left); PDF user space has its origin bottom-left, so Y flips.
func ocrOverlay(buf *bytes.Buffer, p *pdf.Page, words []models.OcrWord) {
	h := p.Height()
	for _, w := range words {
		if w.Text == "" {
			continue
		}
		size := w.BBox.H
		if size <= 0 {
			size = 10
		}
		buf.WriteString("BT /")
		buf.WriteString(fontRes)
		buf.WriteByte(' ')
		writeCoord(buf, size)
		buf.WriteString(" Tf 3 Tr ")
		writeCoord(buf, w.BBox.X)
		buf.WriteByte(' ')
		writeCoord(buf, h-w.BBox.Y-w.BBox.H)
		buf.WriteString(" Td (")
		buf.WriteString(escapeText(w.Text))
		buf.WriteString(") Tj ET\n")
	}
}

// annotationOverlay draws one annotation in page space, flipping Y.
func annotationOverlay(buf *bytes.Buffer, p *pdf.Page, a *models.Annotation) {
	h := p.Height()
	r, g, b := hexColor(a.Color)

	switch a.Type {
	case models.AnnotationHighlight:
		buf.WriteString("q /")
		buf.WriteString(gsRes)
		buf.WriteString(" gs ")
		writeCoord(buf, r)
		buf.WriteByte(' ')
		writeCoord(buf, g)
		buf.WriteByte(' ')
		writeCoord(buf, b)
		buf.WriteString(" rg ")
		writeCoord(buf, a.BBox.X)
		buf.WriteByte(' ')
		writeCoord(buf, h-a.BBox.Y-a.BBox.H)
		buf.WriteByte(' ')
		writeCoord(buf, a.BBox.W)
		buf.WriteByte(' ')
		writeCoord(buf, a.BBox.H)
		buf.WriteString(" re f Q\n")

	case models.AnnotationInk:
		if len(a.Points) < 2 {
			return
		}
		width := a.StrokeWidth
		if width <= 0 {
			width = 2
		}
		buf.WriteString("q ")
		writeCoord(buf, width)
		buf.WriteString(" w 1 J 1 j ")
		writeCoord(buf, r)
		buf.WriteByte(' ')
		writeCoord(buf, g)
		buf.WriteByte(' ')
		writeCoord(buf, b)
		buf.WriteString(" RG ")
		writeCoord(buf, a.Points[0].X)
		buf.WriteByte(' ')
		writeCoord(buf, h-a.Points[0].Y)
		buf.WriteString(" m ")
		for _, pt := range a.Points[1:] {
			writeCoord(buf, pt.X)
			buf.WriteByte(' ')
			writeCoord(buf, h-pt.Y)
			buf.WriteString(" l ")
		}
		buf.WriteString("S Q\n")

	case models.AnnotationNote:
		const marker = 12.0
		buf.WriteString("q ")
		writeCoord(buf, r)
		buf.WriteByte(' ')
		writeCoord(buf, g)
		buf.WriteByte(' ')
		writeCoord(buf, b)
		buf.WriteString(" rg ")
		writeCoord(buf, a.BBox.X)
		buf.WriteByte(' ')
		writeCoord(buf, h-a.BBox.Y-marker)
		buf.WriteByte(' ')
		writeCoord(buf, marker)
		buf.WriteByte(' ')
		writeCoord(buf, marker)
		buf.WriteString(" re f Q\n")
	}
}

// ensureOverlayResources adds the overlay font and graphics state to the
// page's resources. Idempotent.
func ensureOverlayResources(doc *pdf.Document, p *pdf.Page) {
	res := doc.PageResources(p)

	fonts, ok := res["Font"].(pdf.Dict)
	if !ok {
		fonts = pdf.Dict{}
		res["Font"] = fonts
	}
	if _, ok := fonts[fontRes]; !ok {
		fonts[fontRes] = pdf.Dict{
			"Type":     pdf.Name("Font"),
			"Subtype":  pdf.Name("Type1"),
			"BaseFont": pdf.Name("Helvetica"),
		}
	}

	states, ok := res["ExtGState"].(pdf.Dict)
	if !ok {
		states = pdf.Dict{}
		res["ExtGState"] = states
	}
	if _, ok := states[gsRes]; !ok {
		states[gsRes] = pdf.Dict{"ca": 0.4, "CA": 0.4}
	}
}

// BurnRequest carries everything one burn-all pass needs. Words are keyed by
// 1-based page number.
type BurnRequest struct {
	Data        []byte
	Password    string
	Words       map[int][]models.OcrWord
	Annotations []models.Annotation
	PageOffset  int
	Semantic    map[int]models.SemanticPage
}

// BurnAll decrypts (sanitizing if the source was encrypted), overlays the
// OCR text layer and every non-burned annotation, embeds the metadata
// envelope into /Keywords and stamps /Producer. Returns complete new bytes.
func BurnAll(req BurnRequest) ([]byte, error) {
	doc, err := parseFor(req.Data, req.Password)
	if err != nil {
		return nil, err
	}

	if doc.Encrypted() {
		doc, err = sanitizeDoc(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to sanitize: %w", err)
		}
	}

	pages, err := doc.Pages()
	if err != nil {
		return nil, err
	}

	byPage := make(map[int][]*models.Annotation)
	for i := range req.Annotations {
		a := &req.Annotations[i]
		if a.IsBurned {
			continue
		}
		byPage[a.Page] = append(byPage[a.Page], a)
	}

	for _, p := range pages {
		pageNo := p.Index + 1
		words := req.Words[pageNo]
		anns := byPage[pageNo]
		if len(words) == 0 && len(anns) == 0 {
			continue
		}

		var buf bytes.Buffer
		ocrOverlay(&buf, p, words)
		for _, a := range anns {
			annotationOverlay(&buf, p, a)
		}
		ensureOverlayResources(doc, p)
		doc.AppendContent(p, buf.Bytes())
	}

	burned := make([]models.Annotation, len(req.Annotations))
	copy(burned, req.Annotations)
	for i := range burned {
		burned[i].IsBurned = true
	}

	env := &models.Envelope{
		LectoriumV:   models.EnvelopeVersion,
		LastSync:     time.Now().UTC().Format(time.RFC3339),
		PageCount:    len(pages),
		PageOffset:   req.PageOffset,
		Annotations:  burned,
		SemanticData: req.Semantic,
	}
	if err := embedEnvelope(doc, env); err != nil {
		return nil, err
	}
	stampProducer(doc)

	return doc.Bytes(), nil
}

// BurnPageOCR overlays just one page's OCR text layer, for incremental
// updates that skip reprocessing the whole document.
func BurnPageOCR(data []byte, page int, words []models.OcrWord) ([]byte, error) {
	doc, err := parseFor(data, "")
	if err != nil {
		return nil, err
	}
	if doc.Encrypted() {
		return nil, fmt.Errorf("%w: sanitize before burning", common.ErrProtected)
	}

	pages, err := doc.Pages()
	if err != nil {
		return nil, err
	}
	if page < 1 || page > len(pages) {
		return nil, fmt.Errorf("page %d out of range (1..%d)", page, len(pages))
	}

	p := pages[page-1]
	var buf bytes.Buffer
	ocrOverlay(&buf, p, words)
	ensureOverlayResources(doc, p)
	doc.AppendContent(p, buf.Bytes())

	return doc.Bytes(), nil
}

// embedEnvelope replaces any prior envelope in /Keywords with env.
func embedEnvelope(doc *pdf.Document, env *models.Envelope) error {
	encoded, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}

	info := doc.Info()
	keywords := ""
	if kw, ok := doc.String(info["Keywords"]); ok {
		keywords = stripEnvelope(string(kw))
	}
	if keywords != "" {
		keywords += " "
	}
	info["Keywords"] = pdf.String(keywords + encoded)
	return nil
}

// stampProducer records the engine in /Producer, keeping the previous value
// as a suffix so provenance chains are visible.
func stampProducer(doc *pdf.Document) {
	info := doc.Info()
	prev := ""
	if p, ok := doc.String(info["Producer"]); ok {
		prev = string(p)
	}
	switch {
	case prev == "":
		info["Producer"] = pdf.String(engineProducer)
	case strings.HasPrefix(prev, engineProducer):
		// already stamped; keep the chain as-is
	default:
		info["Producer"] = pdf.String(engineProducer + "; " + prev)
	}
}
