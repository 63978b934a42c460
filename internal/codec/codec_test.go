package codec

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/lectorium/lectorium/internal/logging"
	"github.com/lectorium/lectorium/internal/pdf"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fixturePDF builds a plain two-page document.
func fixturePDF() []byte {
	content := []byte("BT /F1 12 Tf 72 720 Td (page one) Tj ET")
	doc := &pdf.Document{
		Trailer: pdf.Dict{"Root": pdf.Ref{Num: 1}, "Info": pdf.Ref{Num: 6}},
		Objects: map[int]any{
			1: pdf.Dict{"Type": pdf.Name("Catalog"), "Pages": pdf.Ref{Num: 2}},
			2: pdf.Dict{
				"Type":     pdf.Name("Pages"),
				"Kids":     pdf.Array{pdf.Ref{Num: 3}, pdf.Ref{Num: 4}},
				"Count":    int64(2),
				"MediaBox": pdf.Array{int64(0), int64(0), int64(612), int64(792)},
			},
			3: pdf.Dict{"Type": pdf.Name("Page"), "Parent": pdf.Ref{Num: 2}, "Contents": pdf.Ref{Num: 5}},
			4: pdf.Dict{"Type": pdf.Name("Page"), "Parent": pdf.Ref{Num: 2}},
			5: &pdf.Stream{Dict: pdf.Dict{"Length": int64(len(content))}, Data: content},
			6: pdf.Dict{
				"Title":    pdf.String("Fixture Doc"),
				"Author":   pdf.String("Test Author"),
				"Producer": pdf.String("Acrobat 11.0"),
			},
		},
	}
	return doc.Bytes()
}

// restrictedPDF builds a file that claims standard-handler encryption the
// blank password cannot satisfy. v selects the handler version.
func restrictedPDF(v int) []byte {
	data := fixturePDF()
	enc := fmt.Sprintf("9 0 obj\n<< /Filter /Standard /V %d /R 3 /Length 40 "+
		"/O <000102030405060708090A0B0C0D0E0F101112131415161718191A1B1C1D1E1F> "+
		"/U <1F1E1D1C1B1A191817161514131211100F0E0D0C0B0A09080706050403020100> "+
		"/P -4 >>\nendobj\n"+
		"trailer\n<< /Encrypt 9 0 R /ID [(fixture-id-0123) (fixture-id-0123)] >>\n", v)
	return append(data, []byte(enc)...)
}

// keywordsOf extracts /Keywords from serialized bytes.
func keywordsOf(data []byte) (string, error) {
	doc, err := pdf.Parse(data)
	if err != nil {
		return "", err
	}
	kw, _ := doc.String(doc.Info()["Keywords"])
	return string(kw), nil
}
