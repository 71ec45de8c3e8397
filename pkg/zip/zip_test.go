package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssets(t *testing.T) {
	data, err := ArchiveAssets([]Asset{
		{Filename: "a.png", Data: []byte("one")},
		{Filename: "a.png", Data: []byte("two")},
		{Filename: "../../etc/passwd", Data: []byte("three")},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	want := map[string]string{"a.png": "one", "a-2.png": "two", "etc/passwd": "three"}
	if len(zr.File) != len(want) {
		t.Fatalf("entries = %d, want %d", len(zr.File), len(want))
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		if want[f.Name] != string(body) {
			t.Fatalf("%s = %q, want %q", f.Name, body, want[f.Name])
		}
	}
}
