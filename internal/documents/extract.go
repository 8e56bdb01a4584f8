package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
)

// Accepted upload MIME types.
const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	// ErrUnsupportedType indicates a file that is neither PDF nor DOCX.
	ErrUnsupportedType = errors.New("unsupported file type")

	errNoDocumentXML = errors.New("word/document.xml not found")
)

// Supported reports whether files of mimeType can be ingested.
func Supported(mimeType string) bool {
	return mimeType == MIMEPDF || mimeType == MIMEDOCX
}

// ExtractText returns the plain text of a PDF or DOCX file.
func ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	switch mimeType {
	case MIMEPDF:
		return extractPDF(ctx, data)
	case MIMEDOCX:
		return extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
}

func extractPDF(ctx context.Context, data []byte) (string, error) {
	loader := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	pages, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("parsing PDF: %w", err)
	}
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, p.PageContent)
	}
	return strings.Join(texts, "\n\n"), nil
}

// extractDOCX reads the paragraphs of word/document.xml. Paragraphs are
// separated by a blank line so each becomes a chunking unit.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening DOCX: %w", err)
	}

	var body io.ReadCloser
	for _, f := range zr.File {
		if path.Clean(f.Name) == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("opening document.xml: %w", err)
			}
			break
		}
	}
	if body == nil {
		return "", errNoDocumentXML
	}
	defer body.Close()

	var (
		paragraphs []string
		current    strings.Builder
		inPara     bool
		inText     bool
	)
	dec := xml.NewDecoder(body)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "tab":
				if inPara {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inPara {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				paragraphs = append(paragraphs, current.String())
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// TitleFromFilename strips the final extension: a trailing dot followed by
// at least one character. "notes." is kept whole and ".env" becomes "".
func TitleFromFilename(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		return filename[:i]
	}
	return filename
}
