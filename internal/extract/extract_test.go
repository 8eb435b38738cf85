package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractPlainText(t *testing.T) {
	got, err := ExtractTextFromBytes(context.Background(), []byte("call notes"), "text/plain; charset=utf-8", "notes.txt")
	if err != nil {
		t.Fatalf("ExtractTextFromBytes: %v", err)
	}
	if got != "call notes" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractXLSX(t *testing.T) {
	data := buildZip(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?><workbook/>`,
		"xl/sharedStrings.xml": `<?xml version="1.0"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="2" uniqueCount="2">
  <si><t>Revenue</t></si>
  <si><t>EBITDA</t></si>
</sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1"><v>12500000</v></c></row>
    <row r="2"><c r="A2" t="s"><v>1</v></c><c r="B2"><v>2900000</v></c></row>
  </sheetData>
</worksheet>`,
	})

	got, err := ExtractTextFromBytes(context.Background(), data, "application/zip", "model.xlsx")
	if err != nil {
		t.Fatalf("ExtractTextFromBytes: %v", err)
	}
	if !strings.Contains(got, "Revenue\t12500000") {
		t.Fatalf("missing revenue row: %q", got)
	}
	if !strings.Contains(got, "EBITDA\t2900000") {
		t.Fatalf("missing ebitda row: %q", got)
	}
}

func TestExtractXLSXInlineStrings(t *testing.T) {
	data := buildZip(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?><workbook/>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1"><c r="A1" t="inlineStr"><is><t>Margin</t></is></c><c r="B1"><v>0.23</v></c></row>
  </sheetData>
</worksheet>`,
	})

	got, err := ExtractTextFromBytes(context.Background(), data, "", "model.xlsx")
	if err != nil {
		t.Fatalf("ExtractTextFromBytes: %v", err)
	}
	if !strings.Contains(got, "Margin\t0.23") {
		t.Fatalf("missing inline string row: %q", got)
	}
}

func TestExtractRejectsPlainZip(t *testing.T) {
	data := buildZip(t, map[string]string{"notes.txt": "hello"})

	_, err := ExtractTextFromBytes(context.Background(), data, "application/zip", "notes.zip")
	if err == nil {
		t.Fatal("expected unsupported mime error for zip")
	}
	if !strings.Contains(err.Error(), "unsupported mime type") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExtractRejectsAudio(t *testing.T) {
	_, err := ExtractTextFromBytes(context.Background(), []byte("RIFF"), "audio/mpeg", "pitch.mp3")
	if err == nil {
		t.Fatal("expected unsupported mime error for audio")
	}
}

func TestStripDocxXML(t *testing.T) {
	raw := `<w:document><w:body><w:p><w:r><w:t>Project Atlas</w:t></w:r></w:p><w:p><w:r><w:t>Confidential</w:t></w:r></w:p></w:body></w:document>`
	got := stripDocxXML(raw)
	if got != "Project Atlas\nConfidential" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeMimeTypeByExtension(t *testing.T) {
	cases := []struct {
		mime string
		name string
		want string
	}{
		{"application/pdf; charset=binary", "cim.pdf", mimePDF},
		{"application/octet-stream", "cim.pdf", mimePDF},
		{"", "notes.txt", mimeText},
		{"text/csv", "data.csv", mimeText},
	}
	for _, tc := range cases {
		if got := normalizeMimeType(tc.mime, tc.name, nil); got != tc.want {
			t.Fatalf("normalizeMimeType(%q, %q) = %q, want %q", tc.mime, tc.name, got, tc.want)
		}
	}
}
