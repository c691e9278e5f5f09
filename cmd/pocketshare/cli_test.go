package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigkaa/pocketshare/internal/domain/filegroup"
	"github.com/bigkaa/pocketshare/internal/domain/model"
	"github.com/bigkaa/pocketshare/internal/service"
)

func TestLocalFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, []byte("png-data"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	files, err := localFiles([]string{path})
	if err != nil {
		t.Fatalf("localFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("файлов %d, ожидался 1", len(files))
	}
	f := files[0]
	if f.Name != "photo.png" || f.SizeBytes != 8 || f.MimeType != "image/png" || f.Path != path {
		t.Errorf("неожиданное описание файла: %+v", f)
	}
	if f.ID == "" || f.ModTime.IsZero() {
		t.Errorf("не заполнены ID или ModTime: %+v", f)
	}

	if _, err := localFiles([]string{dir}); err == nil {
		t.Error("каталог должен отклоняться")
	}
	if _, err := localFiles([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("отсутствующий файл должен давать ошибку")
	}
}

func TestLocalFiles_Dedup(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	paths := []string{
		filepath.Join(dirA, "a.png"),
		filepath.Join(dirB, "a.png"),
		filepath.Join(dirB, "b.png"),
	}
	for _, p := range paths {
		if err := os.WriteFile(p, []byte("0123456789"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	files, err := localFiles(paths)
	if err != nil {
		t.Fatalf("localFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("файлов %d, ожидалось 2: %+v", len(files), files)
	}
	if files[0].Path != paths[0] || files[1].Name != "b.png" {
		t.Errorf("должен остаться первый из дубликатов: %+v", files)
	}
}

func TestPrintListing(t *testing.T) {
	files := []model.DisplayFileRecord{
		{ID: "1", Name: "a.png", SizeFormatted: "1.0 kB", MimeType: "image/png", DateFormatted: "01-03-2024"},
		{ID: "2", Name: "b.mp3", SizeFormatted: "3 B", MimeType: "audio/mpeg", DateFormatted: "02-03-2024"},
	}
	listing := &service.Listing{
		Files: files,
		Groups: map[filegroup.Group][]model.DisplayFileRecord{
			filegroup.Image: files[:1],
			filegroup.Audio: files[1:],
		},
	}

	var buf bytes.Buffer
	if err := printListing(&buf, listing); err != nil {
		t.Fatalf("printListing: %v", err)
	}
	out := buf.String()

	image := strings.Index(out, "Photos (1)")
	audio := strings.Index(out, "Audio (1)")
	if image < 0 || audio < 0 || image > audio {
		t.Errorf("секции отсутствуют или в неверном порядке:\n%s", out)
	}
	if !strings.Contains(out, "a.png") || !strings.Contains(out, "02-03-2024") {
		t.Errorf("нет строк файлов:\n%s", out)
	}
	if strings.Contains(out, "PDFs") {
		t.Errorf("пустая секция выведена:\n%s", out)
	}

	buf.Reset()
	if err := printListing(&buf, &service.Listing{}); err != nil {
		t.Fatalf("printListing: %v", err)
	}
	if !strings.Contains(buf.String(), "Файлов нет") {
		t.Errorf("пустой листинг: %q", buf.String())
	}
}
