package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// zipOf builds a zip archive from name → content pairs, in the given order.
func zipOf(t *testing.T, entries ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for i := 0; i+1 < len(entries); i += 2 {
		fw, err := w.Create(entries[i])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(entries[i+1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func docxBody(text string) string {
	return `<w:document xmlns:w="x"><w:body><w:p w:rsidR="00AB"><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p></w:body></w:document>`
}

func slide(text string) string {
	return `<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func contentTypes(override string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` + override + `</Types>`
}

func TestExtract_Formats(t *testing.T) {
	tests := []struct {
		name string
		key  string
		raw  func(t *testing.T) []byte
		want string
	}{
		{
			name: "plain text",
			key:  "notes/readme.txt",
			raw:  func(*testing.T) []byte { return []byte("Hello world\nLine 2") },
			want: "Hello world\nLine 2",
		},
		{
			name: "markdown with BOM",
			key:  "a.md",
			raw:  func(*testing.T) []byte { return append([]byte{0xEF, 0xBB, 0xBF}, "caf\xc3\xa9"...) },
			want: "café",
		},
		{
			name: "invalid utf8 replaced",
			key:  "a.rst",
			raw:  func(*testing.T) []byte { return []byte("hello\x80world") },
			want: "hello\uFFFDworld",
		},
		{
			name: "unknown extension treated as plain",
			key:  "blob.xyz",
			raw:  func(*testing.T) []byte { return []byte("raw content") },
			want: "raw content",
		},
		{
			name: "uppercase extension",
			key:  "REPORT.TXT",
			raw:  func(*testing.T) []byte { return []byte("shout") },
			want: "shout",
		},
		{
			name: "docx default part",
			key:  "doc.docx",
			raw: func(t *testing.T) []byte {
				return zipOf(t, "word/document.xml", docxBody("Searchable docx content"))
			},
			want: "Searchable docx content",
		},
		{
			name: "docx part from content types",
			key:  "doc.docx",
			raw: func(t *testing.T) []byte {
				ct := contentTypes(`<Override PartName="/word/document2.xml" ContentType="` + docxMainContentType + `"/>`)
				return zipOf(t, contentTypesPath, ct, "word/document2.xml", docxBody("Content from document2"))
			},
			want: "Content from document2",
		},
		{
			name: "docx content types reversed attributes",
			key:  "doc.docx",
			raw: func(t *testing.T) []byte {
				ct := contentTypes(`<Override ContentType="` + docxMainContentType + `" PartName="/word/document3.xml"/>`)
				return zipOf(t, contentTypesPath, ct, "word/document3.xml", docxBody("Reversed order test"))
			},
			want: "Reversed order test",
		},
		{
			name: "pptx slides in numeric order",
			key:  "deck.pptx",
			raw: func(t *testing.T) []byte {
				return zipOf(t,
					"ppt/slides/slide10.xml", slide("Tenth"),
					"ppt/slides/slide2.xml", slide("Second"),
					"ppt/slides/slide1.xml", slide("First"))
			},
			want: "First Second Tenth",
		},
		{
			name: "pptx without slides",
			key:  "deck.pptx",
			raw: func(t *testing.T) []byte {
				return zipOf(t, "ppt/slides/other.xml", "", "docProps/core.xml", "")
			},
			want: "",
		},
		{
			name: "odp paragraphs then headings",
			key:  "pres.odp",
			raw: func(t *testing.T) []byte {
				return zipOf(t, "content.xml", `<office:document><draw:page><text:h>Slide title</text:h><text:p>Body text</text:p></draw:page></office:document>`)
			},
			want: "Body text Slide title",
		},
		{
			name: "ods cells",
			key:  "sheet.ods",
			raw: func(t *testing.T) []byte {
				return zipOf(t, "content.xml", `<table:table-row><table:table-cell><text:p>Cell A</text:p></table:table-cell><table:table-cell><text:span>Cell B</text:span></table:table-cell></table:table-row>`)
			},
			want: "Cell A Cell B",
		},
		{
			name: "xlsx rows",
			key:  "data.xlsx",
			raw: func(t *testing.T) []byte {
				f := excelize.NewFile()
				defer f.Close()
				_ = f.SetCellValue("Sheet1", "A1", "Title")
				_ = f.SetCellValue("Sheet1", "A2", "Value 1")
				_ = f.SetCellValue("Sheet1", "B2", "Value 2")
				var buf bytes.Buffer
				if _, err := f.WriteTo(&buf); err != nil {
					t.Fatal(err)
				}
				return buf.Bytes()
			},
			want: "Title\nValue 1\tValue 2",
		},
	}

	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Extract(tt.key, tt.raw(t))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		raw  []byte
	}{
		{"pptx not a zip", "x.pptx", []byte("not a zip")},
		{"docx not a zip", "x.docx", []byte("not a zip")},
		{"pdf garbage", "x.pdf", []byte("%PDF-nonsense")},
	}
	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(tt.key, tt.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q should name the key", err)
			}
		})
	}
}

func TestExtract_ODFContentMissing(t *testing.T) {
	e := NewExtractor()
	for _, key := range []string{"p.odp", "s.ods"} {
		if _, err := e.Extract(key, zipOf(t, "other.xml", "")); err == nil {
			t.Errorf("%s: expected error when content.xml missing", key)
		}
	}
}

func TestExtract_MaxBytes(t *testing.T) {
	e := NewExtractor(WithMaxBytes(4))
	if _, err := e.Extract("a.txt", []byte("12345")); err == nil {
		t.Error("expected size limit error")
	}
	if got, err := e.Extract("a.txt", []byte("1234")); err != nil || got != "1234" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestExtract_CustomFormat(t *testing.T) {
	boom := errors.New("boom")
	e := NewExtractor(WithFormat(".PDF", func([]byte) (string, error) { return "", boom }))
	_, err := e.Extract("a.pdf", nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped boom, got %v", err)
	}
	if !e.Supports("b.PDF") || e.Supports("c.bin") {
		t.Error("Supports mismatch")
	}
}
