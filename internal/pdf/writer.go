package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Bytes serializes the document: header, objects in ascending number order,
// a classic xref table and the trailer. Output is deterministic for a given
// object graph, which keeps repeated sanitization byte-stable.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	nums := make([]int, 0, len(d.Objects))
	for n := range d.Objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	offsets := make(map[int]int, len(nums))
	for _, n := range nums {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", n)
		writeValue(&buf, d.Objects[n])
		buf.WriteString("\nendobj\n")
	}

	maxNum := 0
	if len(nums) > 0 {
		maxNum = nums[len(nums)-1]
	}

	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n <= maxNum; n++ {
		if off, ok := offsets[n]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := Dict{}
	for k, v := range d.Trailer {
		if k == "Encrypt" || k == "Prev" || k == "XRefStm" {
			continue
		}
		trailer[k] = v
	}
	trailer["Size"] = int64(maxNum + 1)

	buf.WriteString("trailer\n")
	writeValue(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	return buf.Bytes()
}

func writeNumber(buf *bytes.Buffer, f float64) {
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = trimZeros(s)
	buf.WriteString(s)
}

func trimZeros(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}

func writeName(buf *bytes.Buffer, n Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		b := n[i]
		if b <= 0x20 || b >= 0x7f || isDelim(b) || b == '#' {
			fmt.Fprintf(buf, "#%02X", b)
			continue
		}
		buf.WriteByte(b)
	}
}

func writeString(buf *bytes.Buffer, s String) {
	buf.WriteByte('(')
	for _, b := range s {
		switch b {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString("\\n")
		case '\r':
			buf.WriteString("\\r")
		default:
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(')')
}

func writeDict(buf *bytes.Buffer, d Dict) {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	buf.WriteString("<<")
	for _, k := range keys {
		writeName(buf, Name(k))
		buf.WriteByte(' ')
		writeValue(buf, d[Name(k)])
		buf.WriteByte(' ')
	}
	buf.WriteString(">>")
}

func writeValue(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int64:
		fmt.Fprintf(buf, "%d", t)
	case int:
		fmt.Fprintf(buf, "%d", t)
	case float64:
		writeNumber(buf, t)
	case Name:
		writeName(buf, t)
	case String:
		writeString(buf, t)
	case Ref:
		fmt.Fprintf(buf, "%d %d R", t.Num, t.Gen)
	case Array:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeValue(buf, el)
		}
		buf.WriteByte(']')
	case Dict:
		writeDict(buf, t)
	case *Stream:
		t.Dict["Length"] = int64(len(t.Data))
		writeDict(buf, t.Dict)
		buf.WriteString("\nstream\n")
		buf.Write(t.Data)
		buf.WriteString("\nendstream")
	default:
		// unreachable for graphs built by this package
		fmt.Fprintf(buf, "null")
	}
}
