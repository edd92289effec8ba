package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"wegtop/internal"
)

const corpusSchema = `{
  "type": "object",
  "required": ["source_path", "pages"],
  "properties": {
    "source_path": {"type": "string", "minLength": 1},
    "kind": {"type": "string"},
    "used_layout": {"type": "boolean"},
    "used_ocr": {"type": "boolean"},
    "avg_chars_per_page": {"type": "number", "minimum": 0},
    "pages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["page", "text"],
        "properties": {
          "page": {"type": "integer", "minimum": 1},
          "char_count": {"type": "integer", "minimum": 0},
          "text": {"type": "string"}
        }
      }
    }
  }
}`

var compiledCorpusSchema = mustCompileCorpusSchema()

func mustCompileCorpusSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("corpus.json", strings.NewReader(corpusSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile("corpus.json")
}

type corpusPage struct {
	Page      int    `json:"page"`
	CharCount int    `json:"char_count"`
	Text      string `json:"text"`
}

type corpusFile struct {
	SourcePath      string              `json:"source_path"`
	Kind            internal.SourceKind `json:"kind,omitempty"`
	UsedLayout      bool                `json:"used_layout"`
	UsedOCR         bool                `json:"used_ocr"`
	AvgCharsPerPage float64             `json:"avg_chars_per_page"`
	Pages           []corpusPage        `json:"pages"`
}

// SaveCorpus writes the extracted pages of doc as indented JSON to path.
func SaveCorpus(doc internal.Document, path string) error {
	cf := corpusFile{
		SourcePath:      doc.Identifier,
		Kind:            doc.Kind,
		UsedLayout:      doc.LayoutUsed,
		UsedOCR:         doc.OCRUsed,
		AvgCharsPerPage: doc.AvgCharsPerPage,
		Pages:           make([]corpusPage, 0, len(doc.Pages)),
	}
	for _, p := range doc.Pages {
		cf.Pages = append(cf.Pages, corpusPage{Page: p.Number, CharCount: p.CharCount(), Text: p.Text})
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadCorpus reads a corpus file written by SaveCorpus and validates its shape.
func LoadCorpus(path string) (internal.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return internal.Document{}, err
	}
	return DecodeCorpus(data)
}

func DecodeCorpus(data []byte) (internal.Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return internal.Document{}, fmt.Errorf("decode corpus: %w", err)
	}
	if err := compiledCorpusSchema.Validate(raw); err != nil {
		return internal.Document{}, fmt.Errorf("corpus does not match schema: %w", err)
	}

	var cf corpusFile
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&cf); err != nil {
		return internal.Document{}, fmt.Errorf("decode corpus: %w", err)
	}
	doc := internal.Document{
		Identifier:      cf.SourcePath,
		Kind:            cf.Kind,
		OCRUsed:         cf.UsedOCR,
		LayoutUsed:      cf.UsedLayout,
		AvgCharsPerPage: cf.AvgCharsPerPage,
		Pages:           make([]internal.Page, 0, len(cf.Pages)),
	}
	for _, p := range cf.Pages {
		doc.Pages = append(doc.Pages, internal.Page{Number: p.Page, Text: p.Text})
	}
	return doc, nil
}
