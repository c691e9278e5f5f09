package s3store

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

const listResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>look</Name>
  <Prefix></Prefix>
  <KeyCount>3</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <Delimiter>/</Delimiter>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>a.png</Key>
    <LastModified>2024-03-10T04:30:00.000Z</LastModified>
    <ETag>&quot;etag-a&quot;</ETag>
    <Size>10</Size>
    <StorageClass>STANDARD</StorageClass>
  </Contents>
  <Contents>
    <Key>notes.txt</Key>
    <LastModified>2024-03-11T04:30:00.000Z</LastModified>
    <ETag>&quot;etag-b&quot;</ETag>
    <Size>2048</Size>
    <StorageClass>STANDARD</StorageClass>
  </Contents>
  <CommonPrefixes>
    <Prefix>dir/</Prefix>
  </CommonPrefixes>
</ListBucketResult>`

func newTestStore(t *testing.T, endpoint string) *Store {
	t.Helper()
	s, err := New(Options{
		Endpoint:  endpoint,
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "look",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() ошибка: %v", err)
	}
	return s
}

func TestListObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/look") {
			t.Errorf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(listResponse))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	s := newTestStore(t, u.Host)

	entries, err := s.ListObjects(context.Background(), "")
	if err != nil {
		t.Fatalf("ListObjects() ошибка: %v", err)
	}

	byName := make(map[string]int)
	for i, e := range entries {
		byName[e.Name] = i
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, ожидается 3: %+v", len(entries), entries)
	}

	a := entries[byName["a.png"]]
	if a.ID != "etag-a" || a.Metadata == nil || a.Metadata.Size != 10 || a.Metadata.MimeType != "image/png" {
		t.Errorf("a.png = %+v", a)
	}
	n := entries[byName["notes.txt"]]
	if n.Metadata == nil || n.Metadata.MimeType != "text/plain" {
		t.Errorf("notes.txt = %+v", n)
	}
	d := entries[byName["dir/"]]
	if d.ID != "" || d.Metadata != nil {
		t.Errorf("папка dir/ должна быть без id и метаданных: %+v", d)
	}
}

func TestDownloadURL_Presigned(t *testing.T) {
	s := newTestStore(t, "s3.example.com")

	raw, err := s.DownloadURL(context.Background(), "photos/cat 1.png")
	if err != nil {
		t.Fatalf("DownloadURL() ошибка: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	q := u.Query()
	if q.Get("X-Amz-Signature") == "" {
		t.Error("в ссылке нет подписи")
	}
	if q.Get("X-Amz-Expires") != "604800" {
		t.Errorf("X-Amz-Expires = %q, ожидается 604800", q.Get("X-Amz-Expires"))
	}
	if cd := q.Get("response-content-disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "cat 1.png") {
		t.Errorf("response-content-disposition = %q", cd)
	}

	if _, err := s.DownloadURL(context.Background(), ""); err == nil {
		t.Error("ожидалась ошибка для пустого имени")
	}
}
