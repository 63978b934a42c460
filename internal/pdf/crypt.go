package pdf

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBadPassword means the supplied (possibly empty) password failed
	// the standard security handler's user-password check.
	ErrBadPassword = errors.New("pdf: invalid password")

	// ErrUnsupportedEncryption covers handlers beyond RC4 V1/V2 (AES,
	// crypt filters, public key). The file still parses structurally.
	ErrUnsupportedEncryption = errors.New("pdf: unsupported encryption")
)

// passwordPad is the 32-byte padding string from the PDF spec (7.6.3.3).
var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pw []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, pw)
	copy(out[n:], passwordPad)
	return out
}

type stdSecurity struct {
	r      int
	keyLen int // bytes
	o      []byte
	u      []byte
	p      uint32
	id0    []byte
}

func (d *Document) securityParams() (*stdSecurity, error) {
	enc, ok := d.Dict(d.Trailer["Encrypt"])
	if !ok {
		return nil, fmt.Errorf("%w: missing encrypt dict", ErrMalformed)
	}
	if enc["Filter"] != Name("Standard") {
		return nil, ErrUnsupportedEncryption
	}
	v, _ := d.Int(enc["V"])
	if v != 1 && v != 2 {
		return nil, ErrUnsupportedEncryption
	}
	r, _ := d.Int(enc["R"])
	if r != 2 && r != 3 {
		return nil, ErrUnsupportedEncryption
	}

	s := &stdSecurity{r: int(r), keyLen: 5}
	if bits, ok := d.Int(enc["Length"]); ok && bits >= 40 {
		s.keyLen = int(bits / 8)
	}
	if o, ok := d.String(enc["O"]); ok {
		s.o = o
	}
	if u, ok := d.String(enc["U"]); ok {
		s.u = u
	}
	if p, ok := d.Int(enc["P"]); ok {
		s.p = uint32(p)
	}
	if ids, ok := d.Resolve(d.Trailer["ID"]).(Array); ok && len(ids) > 0 {
		if id0, ok := d.String(ids[0]); ok {
			s.id0 = id0
		}
	}
	if len(s.o) < 32 || len(s.u) < 32 {
		return nil, fmt.Errorf("%w: truncated O/U", ErrMalformed)
	}
	return s, nil
}

// fileKey derives the encryption key from the user password (Algorithm 2).
func (s *stdSecurity) fileKey(password string) []byte {
	h := md5.New()
	h.Write(padPassword([]byte(password)))
	h.Write(s.o[:32])
	var pbuf [4]byte
	binary.LittleEndian.PutUint32(pbuf[:], s.p)
	h.Write(pbuf[:])
	h.Write(s.id0)
	key := h.Sum(nil)

	if s.r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:s.keyLen])
			key = sum[:]
		}
	}
	return key[:s.keyLen]
}

// checkUser verifies the user password against /U (Algorithms 4 and 5).
func (s *stdSecurity) checkUser(key []byte) bool {
	if s.r == 2 {
		c, _ := rc4.NewCipher(key)
		out := make([]byte, 32)
		c.XORKeyStream(out, passwordPad)
		return bytes.Equal(out, s.u[:32])
	}

	h := md5.New()
	h.Write(passwordPad)
	h.Write(s.id0)
	buf := h.Sum(nil)

	c, _ := rc4.NewCipher(key)
	c.XORKeyStream(buf, buf)
	for i := 1; i <= 19; i++ {
		k := make([]byte, len(key))
		for j := range key {
			k[j] = key[j] ^ byte(i)
		}
		c, _ := rc4.NewCipher(k)
		c.XORKeyStream(buf, buf)
	}
	return bytes.Equal(buf[:16], s.u[:16])
}

func objectKey(fileKey []byte, num, gen int) []byte {
	h := md5.New()
	h.Write(fileKey)
	h.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), byte(gen), byte(gen >> 8)})
	sum := h.Sum(nil)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

func rc4Apply(key, data []byte) []byte {
	c, _ := rc4.NewCipher(key)
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

// Decrypt authenticates password (empty tries the blank user password) and
// decrypts every string and stream in place. After Decrypt the document
// behaves like a plaintext one, except Encrypted() stays true so callers
// know sanitization is still required.
func (d *Document) Decrypt(password string) error {
	if !d.encrypted {
		return nil
	}

	s, err := d.securityParams()
	if err != nil {
		return err
	}

	key := s.fileKey(password)
	if !s.checkUser(key) {
		return ErrBadPassword
	}
	d.cryptKey = key

	encRef, _ := d.Trailer["Encrypt"].(Ref)

	for num, obj := range d.Objects {
		if num == encRef.Num {
			continue // the encrypt dict itself is not encrypted
		}
		d.Objects[num] = d.decryptValue(obj, num, 0)
	}
	return nil
}

func (d *Document) decryptValue(v any, num, gen int) any {
	switch t := v.(type) {
	case String:
		return String(rc4Apply(objectKey(d.cryptKey, num, gen), t))
	case *Stream:
		t.Dict = d.decryptValue(t.Dict, num, gen).(Dict)
		t.Data = rc4Apply(objectKey(d.cryptKey, num, gen), t.Data)
		return t
	case Dict:
		for k, val := range t {
			t[k] = d.decryptValue(val, num, gen)
		}
		return t
	case Array:
		for i, val := range t {
			t[i] = d.decryptValue(val, num, gen)
		}
		return t
	default:
		return v
	}
}
