package codec

import (
	"bytes"
	"testing"

	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_PreservesPagesAndContent(t *testing.T) {
	out, err := Sanitize(fixturePDF(), "")
	require.NoError(t, err)

	doc, err := pdf.Parse(out)
	require.NoError(t, err)
	assert.False(t, doc.Encrypted())

	pages, err := doc.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 2)

	// content streams are copied wholesale, not re-rendered
	assert.Contains(t, pageContent(t, out, 0), "(page one) Tj")

	// inherited attributes became explicit
	assert.Equal(t, 612.0, pages[0].Width())
	assert.Equal(t, 792.0, pages[1].Height())
}

func TestSanitize_TransplantsDescriptiveInfo(t *testing.T) {
	out, err := Sanitize(fixturePDF(), "")
	require.NoError(t, err)

	doc, err := pdf.Parse(out)
	require.NoError(t, err)
	info := doc.Info()

	title, _ := doc.String(info["Title"])
	assert.Equal(t, "Fixture Doc", string(title))
	author, _ := doc.String(info["Author"])
	assert.Equal(t, "Test Author", string(author))
}

func TestSanitize_InheritedResourcesBecomeExplicit(t *testing.T) {
	content := []byte("BT /F1 12 Tf 72 720 Td (inherited font) Tj ET")
	doc := &pdf.Document{
		Trailer: pdf.Dict{"Root": pdf.Ref{Num: 1}},
		Objects: map[int]any{
			1: pdf.Dict{"Type": pdf.Name("Catalog"), "Pages": pdf.Ref{Num: 2}},
			2: pdf.Dict{
				"Type":      pdf.Name("Pages"),
				"Kids":      pdf.Array{pdf.Ref{Num: 3}},
				"Count":     int64(1),
				"MediaBox":  pdf.Array{int64(0), int64(0), int64(612), int64(792)},
				"Resources": pdf.Dict{"Font": pdf.Dict{"F1": pdf.Ref{Num: 5}}},
			},
			3: pdf.Dict{"Type": pdf.Name("Page"), "Parent": pdf.Ref{Num: 2}, "Contents": pdf.Ref{Num: 4}},
			4: &pdf.Stream{Dict: pdf.Dict{"Length": int64(len(content))}, Data: content},
			5: pdf.Dict{"Type": pdf.Name("Font"), "Subtype": pdf.Name("Type1"), "BaseFont": pdf.Name("Helvetica")},
		},
	}

	out, err := Sanitize(doc.Bytes(), "")
	require.NoError(t, err)

	parsed, err := pdf.Parse(out)
	require.NoError(t, err)
	pages, err := parsed.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 1)

	// the font bound at the Pages node is written directly onto the page,
	// so the content stream's /F1 still resolves in the rebuilt tree
	res, ok := parsed.Dict(pages[0].Dict["Resources"])
	require.True(t, ok)
	fonts, ok := parsed.Dict(res["Font"])
	require.True(t, ok)
	font, ok := parsed.Dict(fonts["F1"])
	require.True(t, ok)
	assert.Equal(t, pdf.Name("Helvetica"), font["BaseFont"])

	twice, err := Sanitize(out, "")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(out, twice))
}

func TestSanitize_Idempotent(t *testing.T) {
	once, err := Sanitize(fixturePDF(), "")
	require.NoError(t, err)
	twice, err := Sanitize(once, "")
	require.NoError(t, err)

	assert.True(t, bytes.Equal(once, twice))
}

func TestSanitize_PasswordRequired(t *testing.T) {
	_, err := Sanitize(restrictedPDF(1), "")
	assert.ErrorIs(t, err, common.ErrPasswordRequired)
}

func TestSanitize_UnsupportedHandlerIsProtected(t *testing.T) {
	_, err := Sanitize(restrictedPDF(4), "")
	assert.ErrorIs(t, err, common.ErrProtected)
}

func TestSanitize_Corrupt(t *testing.T) {
	_, err := Sanitize([]byte("garbage"), "")
	assert.ErrorIs(t, err, common.ErrCorrupt)
}
