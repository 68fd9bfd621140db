package backup

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndRestore(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	writeFile(t, filepath.Join("plugins", "weather", "config", "weather.json"), `{"handle": "wttr"}`)
	writeFile(t, filepath.Join("plugins", "weather", "data", "weather.db"), "")
	writeFile(t, filepath.Join("plugins", "weather", "resources", "weather.md"), "not archived")
	writeFile(t, filepath.Join("data", "global.db"), "")

	archive := filepath.Join(root, "backup.tar.gz")
	if err := Create("plugins", "data", archive); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	names := archiveNames(t, archive)
	want := map[string]bool{
		"plugins/weather/config/weather.json": true,
		"plugins/weather/data/weather.db":     true,
		"data/global.db":                      true,
	}
	if len(names) != len(want) {
		t.Fatalf("archive entries = %v, want %v", names, keys(want))
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected archive entry %q", n)
		}
	}

	dest := t.TempDir()
	if err := Restore(archive, dest); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "plugins", "weather", "config", "weather.json"))
	if err != nil {
		t.Fatalf("restored config missing: %v", err)
	}
	if string(data) != `{"handle": "wttr"}` {
		t.Errorf("restored config = %q", data)
	}
}

func TestCreateMissingRoots(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "backup.tar.gz")

	if err := Create(filepath.Join(root, "nope"), filepath.Join(root, "also-nope"), archive); err != nil {
		t.Fatalf("Create() with missing roots: %v", err)
	}
	if got := archiveNames(t, archive); len(got) != 0 {
		t.Errorf("archive entries = %v, want empty", got)
	}
}

func TestRestoreRejectsEscape(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "evil.tar.gz")

	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	content := []byte("owned")
	if err := tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0o644, Size: int64(len(content))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gw.Close()
	f.Close()

	if err := Restore(archive, filepath.Join(root, "dest")); err == nil {
		t.Fatal("Restore() accepted a path-traversal entry")
	}
}

func archiveNames(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer gr.Close()

	var names []string
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, hdr.Name)
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
