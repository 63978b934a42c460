package pdf

import "fmt"

// Page is one leaf of the page tree with its inherited attributes resolved.
type Page struct {
	Ref      Ref
	Dict     Dict
	MediaBox [4]float64
	// Resources is the effective resource dictionary, own or inherited
	// from an ancestor Pages node; nil when neither declares one.
	Resources Dict
	Index     int // 0-based position in reading order
}

// Width returns the page width in default user space units.
func (p *Page) Width() float64 {
	return p.MediaBox[2] - p.MediaBox[0]
}

// Height returns the page height in default user space units.
func (p *Page) Height() float64 {
	return p.MediaBox[3] - p.MediaBox[1]
}

func (d *Document) number(v any) (float64, bool) {
	switch t := d.Resolve(v).(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// Pages walks the page tree in reading order.
func (d *Document) Pages() ([]*Page, error) {
	root, err := d.Catalog()
	if err != nil {
		return nil, err
	}

	pagesRef, ok := root["Pages"].(Ref)
	if !ok {
		return nil, fmt.Errorf("%w: catalog without pages", ErrMalformed)
	}

	var out []*Page
	var walk func(ref Ref, inheritedBox [4]float64, res Dict, depth int) error

	defaultBox := [4]float64{0, 0, 612, 792} // US Letter

	walk = func(ref Ref, box [4]float64, res Dict, depth int) error {
		if depth > 64 {
			return fmt.Errorf("%w: page tree too deep", ErrMalformed)
		}
		node, ok := d.Dict(d.Objects[ref.Num])
		if !ok {
			return fmt.Errorf("%w: dangling page tree node %d", ErrMalformed, ref.Num)
		}

		if mb, ok := d.Resolve(node["MediaBox"]).(Array); ok && len(mb) == 4 {
			for i := 0; i < 4; i++ {
				if f, ok := d.number(mb[i]); ok {
					box[i] = f
				}
			}
		}
		if r, ok := d.Dict(node["Resources"]); ok {
			res = r
		}

		switch node["Type"] {
		case Name("Pages"):
			kids, ok := d.Resolve(node["Kids"]).(Array)
			if !ok {
				return fmt.Errorf("%w: pages node without kids", ErrMalformed)
			}
			for _, kid := range kids {
				kidRef, ok := kid.(Ref)
				if !ok {
					return fmt.Errorf("%w: inline page tree kid", ErrMalformed)
				}
				if err := walk(kidRef, box, res, depth+1); err != nil {
					return err
				}
			}
		case Name("Page"):
			out = append(out, &Page{Ref: ref, Dict: node, MediaBox: box, Resources: res, Index: len(out)})
		default:
			return fmt.Errorf("%w: unexpected page tree node type", ErrMalformed)
		}
		return nil
	}

	if err := walk(pagesRef, defaultBox, nil, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendContent adds a content stream after the page's existing content.
// Existing streams are untouched, so prior visual output is preserved.
func (d *Document) AppendContent(p *Page, content []byte) {
	ref := d.AddObject(&Stream{
		Dict: Dict{"Length": int64(len(content))},
		Data: content,
	})

	switch existing := p.Dict["Contents"].(type) {
	case nil:
		p.Dict["Contents"] = ref
	case Array:
		p.Dict["Contents"] = append(existing, ref)
	default:
		p.Dict["Contents"] = Array{existing, ref}
	}
}

// PageResources returns the page's direct /Resources dictionary. Indirect or
// inherited resources are materialized onto the page first, so additions stay
// local and entries bound at an ancestor Pages node keep resolving.
func (d *Document) PageResources(p *Page) Dict {
	if res, direct := p.Dict["Resources"].(Dict); direct {
		return res
	}
	copied := Dict{}
	for k, v := range p.Resources {
		copied[k] = v
	}
	p.Dict["Resources"] = copied
	return copied
}
