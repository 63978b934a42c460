// Package pdf implements the constrained PDF object model the codec needs:
// a scanning parser, the standard (RC4) security handler, page-tree walking
// and a deterministic serializer.
//
// The subset is deliberate. Cross-reference streams and object streams
// (PDF 1.5 compressed objects) are not read; classic xref tables are
// skipped and objects are recovered by scanning, which also copes with
// documents whose xref offsets are broken. Page content streams are never
// decompressed: the codec only appends new streams, so existing content
// passes through byte-for-byte.
package pdf

import "fmt"

// Name is a PDF name object (written with a leading slash).
type Name string

// Ref is an indirect object reference.
type Ref struct {
	Num int
	Gen int
}

// Dict is a PDF dictionary.
type Dict map[Name]any

// Array is a PDF array.
type Array []any

// String is a PDF string value, already unescaped.
type String []byte

// Stream is a stream object: its dictionary plus raw (still encoded) data.
type Stream struct {
	Dict Dict
	Data []byte
}

// Document is a parsed file: the object table and the trailer dictionary.
type Document struct {
	Objects map[int]any
	Trailer Dict

	encrypted bool
	cryptKey  []byte // set after successful Decrypt
}

// Encrypted reports whether the file carries an /Encrypt dictionary.
func (d *Document) Encrypted() bool {
	return d.encrypted
}

// Resolve follows a reference to its object; non-references pass through.
func (d *Document) Resolve(v any) any {
	for i := 0; i < 32; i++ {
		ref, ok := v.(Ref)
		if !ok {
			return v
		}
		v = d.Objects[ref.Num]
	}
	return nil
}

// Dict resolves v to a dictionary, unwrapping streams.
func (d *Document) Dict(v any) (Dict, bool) {
	switch t := d.Resolve(v).(type) {
	case Dict:
		return t, true
	case *Stream:
		return t.Dict, true
	}
	return nil, false
}

// Int resolves v to an integer.
func (d *Document) Int(v any) (int64, bool) {
	switch t := d.Resolve(v).(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	}
	return 0, false
}

// String resolves v to a string value.
func (d *Document) String(v any) (String, bool) {
	s, ok := d.Resolve(v).(String)
	return s, ok
}

// MaxObjNum returns the highest allocated object number.
func (d *Document) MaxObjNum() int {
	max := 0
	for n := range d.Objects {
		if n > max {
			max = n
		}
	}
	return max
}

// AddObject allocates a fresh object number for v and returns its reference.
func (d *Document) AddObject(v any) Ref {
	n := d.MaxObjNum() + 1
	d.Objects[n] = v
	return Ref{Num: n}
}

// Info returns the trailer's /Info dictionary, creating it if absent.
func (d *Document) Info() Dict {
	if info, ok := d.Dict(d.Trailer["Info"]); ok {
		return info
	}
	info := Dict{}
	d.Trailer["Info"] = d.AddObject(info)
	return info
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (Dict, error) {
	root, ok := d.Dict(d.Trailer["Root"])
	if !ok {
		return nil, fmt.Errorf("missing document catalog")
	}
	return root, nil
}
