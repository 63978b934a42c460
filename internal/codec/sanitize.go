package codec

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/pdf"
)

// descriptiveKeys are the /Info entries transplanted during sanitization.
var descriptiveKeys = []pdf.Name{
	"Title", "Author", "Subject", "Keywords",
	"Creator", "Producer", "CreationDate", "ModDate",
}

// graphCopier copies object graphs between documents, renumbering
// deterministically so repeated sanitization is byte-stable.
type graphCopier struct {
	src     *pdf.Document
	dst     *pdf.Document
	mapping map[int]int
	next    int
}

func (c *graphCopier) alloc() int {
	n := c.next
	c.next++
	return n
}

func (c *graphCopier) copyValue(v any) any {
	switch t := v.(type) {
	case pdf.Ref:
		if n, ok := c.mapping[t.Num]; ok {
			return pdf.Ref{Num: n}
		}
		n := c.alloc()
		c.mapping[t.Num] = n
		c.dst.Objects[n] = nil // reserve before recursing; cycles are legal
		c.dst.Objects[n] = c.copyValue(c.src.Objects[t.Num])
		return pdf.Ref{Num: n}
	case pdf.Dict:
		out := pdf.Dict{}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[pdf.Name(k)] = c.copyValue(t[pdf.Name(k)])
		}
		return out
	case pdf.Array:
		out := make(pdf.Array, len(t))
		for i, el := range t {
			out[i] = c.copyValue(el)
		}
		return out
	case pdf.String:
		out := make(pdf.String, len(t))
		copy(out, t)
		return out
	case *pdf.Stream:
		data := make([]byte, len(t.Data))
		copy(data, t.Data)
		return &pdf.Stream{Dict: c.copyValue(t.Dict).(pdf.Dict), Data: data}
	default:
		return v
	}
}

// sanitizeDoc re-authors src into a brand-new unencrypted container: every
// page's content is copied wholesale (not re-rendered) into fresh objects,
// and descriptive metadata is transplanted. Access-control metadata does not
// survive the copy.
func sanitizeDoc(src *pdf.Document) (*pdf.Document, error) {
	pages, err := src.Pages()
	if err != nil {
		return nil, err
	}

	dst := &pdf.Document{Objects: map[int]any{}, Trailer: pdf.Dict{}}
	c := &graphCopier{src: src, dst: dst, mapping: map[int]int{}, next: 3}

	// 1: catalog, 2: page tree root, pages and their graphs follow
	pagesRef := pdf.Ref{Num: 2}
	dst.Objects[1] = pdf.Dict{"Type": pdf.Name("Catalog"), "Pages": pagesRef}
	dst.Trailer["Root"] = pdf.Ref{Num: 1}

	kids := make(pdf.Array, 0, len(pages))
	for _, p := range pages {
		// inherited attributes become explicit in the new tree; merging them
		// in before the sorted copy keeps renumbering stable across runs
		src := pdf.Dict{}
		for k, v := range p.Dict {
			src[k] = v
		}
		if _, ok := src["Resources"]; !ok && p.Resources != nil {
			src["Resources"] = p.Resources
		}

		pageDict := pdf.Dict{}
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "Parent" {
				continue
			}
			pageDict[pdf.Name(k)] = c.copyValue(src[pdf.Name(k)])
		}
		pageDict["Parent"] = pagesRef
		pageDict["MediaBox"] = pdf.Array{p.MediaBox[0], p.MediaBox[1], p.MediaBox[2], p.MediaBox[3]}

		n := c.alloc()
		dst.Objects[n] = pageDict
		kids = append(kids, pdf.Ref{Num: n})
	}

	dst.Objects[2] = pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  kids,
		"Count": int64(len(kids)),
	}

	if srcInfo, ok := src.Dict(src.Trailer["Info"]); ok {
		info := pdf.Dict{}
		for _, k := range descriptiveKeys {
			if v, ok := src.String(srcInfo[k]); ok {
				out := make(pdf.String, len(v))
				copy(out, v)
				info[k] = out
			}
		}
		if len(info) > 0 {
			n := c.alloc()
			dst.Objects[n] = info
			dst.Trailer["Info"] = pdf.Ref{Num: n}
		}
	}

	return dst, nil
}

// Sanitize strips restrictions from a document by re-authoring it. Already
// unencrypted documents pass through the same re-authoring, which makes the
// operation idempotent: a second run reproduces the page content bytes.
func Sanitize(data []byte, password string) ([]byte, error) {
	doc, err := parseFor(data, password)
	if err != nil {
		return nil, err
	}
	clean, err := sanitizeDoc(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorrupt, err)
	}
	return clean.Bytes(), nil
}

// parseFor parses and, when needed, decrypts a document, mapping pdf-level
// failures onto the caller-facing error taxonomy.
func parseFor(data []byte, password string) (*pdf.Document, error) {
	doc, err := pdf.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorrupt, err)
	}
	if !doc.Encrypted() {
		return doc, nil
	}

	// no password means try the blank user password, the common case for
	// restriction-only documents
	err = doc.Decrypt(password)
	switch {
	case errors.Is(err, pdf.ErrBadPassword):
		return nil, common.ErrPasswordRequired
	case errors.Is(err, pdf.ErrUnsupportedEncryption):
		return nil, common.ErrProtected
	case err != nil:
		return nil, fmt.Errorf("%w: %v", common.ErrCorrupt, err)
	}
	return doc, nil
}
