package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
)

const (
	TypePDF  = "pdf"
	TypeDOCX = "docx"
	TypeHTML = "html"
	TypeText = "text"
)

// Extension returns the lowercased extension of the URL path, ignoring any
// query string or fragment.
func Extension(fileURL string) string {
	p := fileURL
	if u, err := url.Parse(strings.TrimSpace(fileURL)); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// ExtractText returns the document text and the detected type. Unknown
// extensions are decoded as UTF-8 with invalid bytes dropped.
func ExtractText(fileURL string, data []byte) (string, string, error) {
	switch Extension(fileURL) {
	case ".pdf":
		text, err := extractPDF(data)
		return text, TypePDF, err
	case ".docx":
		text, err := extractDOCX(data)
		return text, TypeDOCX, err
	case ".html", ".htm":
		text, err := extractHTML(data)
		return text, TypeHTML, err
	default:
		return strings.TrimSpace(strings.ToValidUTF8(string(data), "")), TypeText, nil
	}
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	var out strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		out.WriteString(strings.TrimSpace(text))
		out.WriteString("\n")
	}
	return strings.TrimSpace(out.String()), nil
}

// extractDOCX reads word/document.xml, one line per paragraph.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx zip: %w", err)
	}
	f := findZipFile(zr, "word/document.xml")
	if f == nil {
		return "", fmt.Errorf("docx: word/document.xml not found")
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("docx open: %w", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("docx read: %w", err)
	}
	return paragraphsFromWordXML(b), nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func paragraphsFromWordXML(xmlBytes []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out, para strings.Builder
	flush := func() {
		if p := strings.TrimSpace(para.String()); p != "" {
			out.WriteString(p)
			out.WriteString("\n")
		}
		para.Reset()
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				var v string
				_ = dec.DecodeElement(&v, &el)
				para.WriteString(v)
			case "tab":
				para.WriteString("\t")
			case "br":
				para.WriteString("\n")
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				flush()
			}
		}
	}
	flush()
	return strings.TrimSpace(out.String())
}

// extractHTML keeps the visible body text, one line per block element.
func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("html parse: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var lines []string
	root.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td, th, blockquote").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if line := strings.Join(strings.Fields(s.Text()), " "); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.Join(strings.Fields(root.Text()), " "), nil
	}
	return strings.Join(lines, "\n"), nil
}
