package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/xuri/excelize/v2"
)

// PDF returns the plain text of every page.
func PDF(ctx context.Context, data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", goerr.Wrap(err, "failed to open pdf")
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", goerr.Wrap(err, "failed to read pdf text", goerr.V("pages", r.NumPage()))
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", goerr.Wrap(err, "failed to read pdf text")
	}
	return buf.String(), nil
}

// Docx reads word/document.xml and emits one line per paragraph.
func Docx(ctx context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", goerr.Wrap(err, "failed to open docx archive")
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", goerr.New("word/document.xml not found in docx")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", goerr.Wrap(err, "failed to open document.xml")
	}
	defer rc.Close()

	var (
		sb     strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to parse document.xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

// LegacyDoc pulls printable text runs out of a binary Word 97-2003 file. Runs shorter than
// four characters are dropped as formatting noise.
func LegacyDoc(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", goerr.New("empty doc file")
	}

	var (
		out strings.Builder
		run []rune
	)
	flush := func() {
		if len(run) >= 4 {
			out.WriteString(string(run))
			out.WriteByte('\n')
		}
		run = run[:0]
	}

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r == utf8.RuneError || !(unicode.IsPrint(r) || r == '\t') {
			flush()
			continue
		}
		run = append(run, r)
	}
	flush()
	return out.String(), nil
}

// Xlsx renders every sheet as tab separated rows under a sheet name header.
func Xlsx(ctx context.Context, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", goerr.Wrap(err, "failed to open spreadsheet")
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read sheet", goerr.V("sheet", sheet))
		}
		if len(rows) == 0 {
			continue
		}

		sb.WriteString(sheet)
		sb.WriteByte('\n')
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

// HTML keeps headings, paragraphs, list items and table cells from the main content.
func HTML(ctx context.Context, data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse html")
	}
	doc.Find("script, style, noscript").Remove()

	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Selection
	}

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	sel.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n"), nil
}

// Text returns data as UTF-8, replacing invalid sequences.
func Text(ctx context.Context, data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
