package pdf

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture builds a two-page document with an inherited MediaBox.
func fixture() *Document {
	content := []byte("BT /F1 12 Tf 72 720 Td (hello) Tj ET")
	return &Document{
		Trailer: Dict{"Root": Ref{Num: 1}, "Info": Ref{Num: 6}},
		Objects: map[int]any{
			1: Dict{"Type": Name("Catalog"), "Pages": Ref{Num: 2}},
			2: Dict{
				"Type":     Name("Pages"),
				"Kids":     Array{Ref{Num: 3}, Ref{Num: 4}},
				"Count":    int64(2),
				"MediaBox": Array{int64(0), int64(0), int64(612), int64(792)},
			},
			3: Dict{"Type": Name("Page"), "Parent": Ref{Num: 2}, "Contents": Ref{Num: 5}},
			4: Dict{
				"Type": Name("Page"), "Parent": Ref{Num: 2},
				"MediaBox": Array{int64(0), int64(0), int64(595), int64(842)},
			},
			5: &Stream{Dict: Dict{"Length": int64(len(content))}, Data: content},
			6: Dict{"Title": String("Fixture"), "Keywords": String("alpha beta")},
		},
	}
}

func TestParse_RoundTrip(t *testing.T) {
	data := fixture().Bytes()

	doc, err := Parse(data)
	require.NoError(t, err)
	assert.False(t, doc.Encrypted())

	root, err := doc.Catalog()
	require.NoError(t, err)
	assert.Equal(t, Name("Catalog"), root["Type"])

	info := doc.Info()
	require.NotNil(t, info)
	title, ok := doc.String(info["Title"])
	require.True(t, ok)
	assert.Equal(t, "Fixture", string(title))

	st, ok := doc.Resolve(Ref{Num: 5}).(*Stream)
	require.True(t, ok)
	assert.Contains(t, string(st.Data), "(hello) Tj")
}

func TestParse_MissingHeader(t *testing.T) {
	_, err := Parse([]byte("not a pdf"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParse_LaterObjectWins(t *testing.T) {
	data := fixture().Bytes()

	// simulate an incremental update appending a replacement Info object
	update := []byte("6 0 obj\n<< /Title (Updated) >>\nendobj\n")
	data = append(data, update...)

	doc, err := Parse(data)
	require.NoError(t, err)
	title, ok := doc.String(doc.Info()["Title"])
	require.True(t, ok)
	assert.Equal(t, "Updated", string(title))
}

func TestParse_StringEscapes(t *testing.T) {
	src := []byte("%PDF-1.7\n" +
		"1 0 obj\n<< /A (paren \\( inside) /B (line\\nbreak) /C <48656C6C6F> >>\nendobj\n" +
		"trailer\n<< /Size 2 >>\n")
	doc, err := Parse(src)
	require.NoError(t, err)

	d, ok := doc.Objects[1].(Dict)
	require.True(t, ok)
	a, _ := doc.String(d["A"])
	assert.Equal(t, "paren ( inside", string(a))
	b, _ := doc.String(d["B"])
	assert.Equal(t, "line\nbreak", string(b))
	c, _ := doc.String(d["C"])
	assert.Equal(t, "Hello", string(c))
}

func TestParse_StreamIndirectLength(t *testing.T) {
	payload := "stream payload bytes"
	src := []byte(fmt.Sprintf("%%PDF-1.7\n"+
		"1 0 obj\n<< /Length 2 0 R >>\nstream\n%s\nendstream\nendobj\n"+
		"2 0 obj\n%d\nendobj\n"+
		"trailer\n<< /Size 3 >>\n", payload, len(payload)))

	doc, err := Parse(src)
	require.NoError(t, err)
	st, ok := doc.Objects[1].(*Stream)
	require.True(t, ok)
	assert.Equal(t, payload, string(st.Data))
}

func TestPages_InheritedMediaBox(t *testing.T) {
	doc, err := Parse(fixture().Bytes())
	require.NoError(t, err)

	pages, err := doc.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 2)

	// first page inherits from the Pages node
	assert.Equal(t, 612.0, pages[0].Width())
	assert.Equal(t, 792.0, pages[0].Height())
	assert.Equal(t, 0, pages[0].Index)

	// second carries its own
	assert.Equal(t, 595.0, pages[1].Width())
	assert.Equal(t, 842.0, pages[1].Height())
}

func TestPages_InheritedResources(t *testing.T) {
	src := fixture()
	src.Objects[7] = Dict{"Type": Name("Font"), "Subtype": Name("Type1"), "BaseFont": Name("Helvetica")}
	src.Objects[2].(Dict)["Resources"] = Dict{"Font": Dict{"F1": Ref{Num: 7}}}

	doc, err := Parse(src.Bytes())
	require.NoError(t, err)
	pages, err := doc.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 2)

	// neither page declares its own, both see the ancestor's
	for _, p := range pages {
		fonts, ok := doc.Dict(p.Resources["Font"])
		require.True(t, ok)
		font, ok := doc.Dict(fonts["F1"])
		require.True(t, ok)
		assert.Equal(t, Name("Helvetica"), font["BaseFont"])
	}

	// materializing writes a direct copy onto the page, independent of
	// the ancestor dictionary the sibling still sees
	res := doc.PageResources(pages[0])
	res["ExtGState"] = Dict{}
	_, leaked := pages[1].Resources["ExtGState"]
	assert.False(t, leaked)

	direct, ok := pages[0].Dict["Resources"].(Dict)
	require.True(t, ok)
	assert.Contains(t, direct, Name("Font"))
}

func TestAppendContent(t *testing.T) {
	doc, err := Parse(fixture().Bytes())
	require.NoError(t, err)
	pages, err := doc.Pages()
	require.NoError(t, err)

	doc.AppendContent(pages[0], []byte("q Q"))

	arr, ok := pages[0].Dict["Contents"].(Array)
	require.True(t, ok)
	require.Len(t, arr, 2)

	st, ok := doc.Resolve(arr[1]).(*Stream)
	require.True(t, ok)
	assert.Equal(t, "q Q", string(st.Data))

	// a page with no content gets a direct reference
	doc.AppendContent(pages[1], []byte("0 g"))
	_, isRef := pages[1].Dict["Contents"].(Ref)
	assert.True(t, isRef)
}

func TestBytes_Deterministic(t *testing.T) {
	a := fixture().Bytes()
	b := fixture().Bytes()
	assert.True(t, bytes.Equal(a, b))

	// write-parse-write is stable too
	doc, err := Parse(a)
	require.NoError(t, err)
	assert.Equal(t, a, doc.Bytes())
}

func TestWriter_DropsEncryptFromTrailer(t *testing.T) {
	doc := fixture()
	doc.Trailer["Encrypt"] = Ref{Num: 9}
	doc.Trailer["Prev"] = int64(1234)

	out, err := Parse(doc.Bytes())
	require.NoError(t, err)
	assert.NotContains(t, out.Trailer, Name("Encrypt"))
	assert.NotContains(t, out.Trailer, Name("Prev"))
}
