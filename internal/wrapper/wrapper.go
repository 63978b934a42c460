// Package wrapper implements the portable fallback container used when a
// document's native format cannot safely receive annotations (for example
// while it is still encrypted): a zip package holding a JSON manifest, a
// JSON data section with the derived layers, and — for the pdf_wrapper
// type — the original source bytes unmodified.
package wrapper

import (
	"archive/zip"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lectorium/lectorium/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Container types.
const (
	TypeDocument   = "document"
	TypePDFWrapper = "pdf_wrapper"
)

// Archive member names. Fixed wire format.
const (
	manifestName = "manifest.json"
	dataName     = "data.json"
	originalName = "original.pdf"
)

// Manifest describes the package.
type Manifest struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Data is the package's JSON data section.
type Data struct {
	// pdf_wrapper layers
	Annotations  []models.Annotation           `json:"annotations,omitempty"`
	PageOffset   int                           `json:"pageOffset,omitempty"`
	SemanticData map[int]models.SemanticPage   `json:"semanticData,omitempty"`

	// document (rich text) content
	Content json.RawMessage `json:"content,omitempty"`
}

// Container is a decoded package.
type Container struct {
	Manifest Manifest
	Data     Data
	Original []byte // source bytes, pdf_wrapper only
}

//go:embed manifest_schema.json
var manifestSchema string

var compiledSchema = func() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchema))
	if err != nil {
		panic(fmt.Sprintf("wrapper: bad embedded schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(manifestName, doc); err != nil {
		panic(fmt.Sprintf("wrapper: bad embedded schema: %v", err))
	}
	sch, err := c.Compile(manifestName)
	if err != nil {
		panic(fmt.Sprintf("wrapper: bad embedded schema: %v", err))
	}
	return sch
}()

func validateManifest(raw []byte) error {
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid manifest json: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}

// Encode builds the package bytes. For TypePDFWrapper original must hold the
// untouched source document.
func Encode(c *Container) ([]byte, error) {
	if c.Manifest.Version == 0 {
		c.Manifest.Version = 1
	}
	if c.Manifest.CreatedAt == "" {
		c.Manifest.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if c.Manifest.Type == TypePDFWrapper && len(c.Original) == 0 {
		return nil, fmt.Errorf("pdf_wrapper without original bytes")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifest, err := json.Marshal(c.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := validateManifest(manifest); err != nil {
		return nil, err
	}
	if err := addFile(zw, manifestName, manifest); err != nil {
		return nil, err
	}

	data, err := json.Marshal(c.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := addFile(zw, dataName, data); err != nil {
		return nil, err
	}

	if c.Manifest.Type == TypePDFWrapper {
		if err := addFile(zw, originalName, c.Original); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize package: %w", err)
	}
	return buf.Bytes(), nil
}

func addFile(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Decode opens package bytes, validating the manifest against the schema.
func Decode(data []byte) (*Container, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open package: %w", err)
	}

	c := &Container{}
	seenManifest := false
	for _, f := range zr.File {
		content, err := readMember(f)
		if err != nil {
			return nil, err
		}
		switch f.Name {
		case manifestName:
			if err := validateManifest(content); err != nil {
				return nil, err
			}
			if err := json.Unmarshal(content, &c.Manifest); err != nil {
				return nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			seenManifest = true
		case dataName:
			if err := json.Unmarshal(content, &c.Data); err != nil {
				return nil, fmt.Errorf("failed to parse data section: %w", err)
			}
		case originalName:
			c.Original = content
		}
	}

	if !seenManifest {
		return nil, fmt.Errorf("package has no manifest")
	}
	if c.Manifest.Type == TypePDFWrapper && len(c.Original) == 0 {
		return nil, fmt.Errorf("pdf_wrapper package has no original document")
	}
	return c, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return content, nil
}
