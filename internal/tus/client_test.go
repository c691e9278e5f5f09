package tus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/pocketshare/internal/domain/upload"
)

// --- Тестовый сервер tus ---

type fakeUpload struct {
	length   int64
	data     []byte
	metadata map[string]string
}

type fakeServer struct {
	t       *testing.T
	mu      sync.Mutex
	uploads map[string]*fakeUpload
	seq     int
	posts   int
	heads   int
	patches int
	headers []http.Header

	// failPost/failPatch возвращают статус ошибки для n-го запроса (0 — успех).
	failPost  func(n int) (int, string)
	failPatch func(n int) int
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{t: t, uploads: make(map[string]*fakeUpload)}
	srv := httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if r.Header.Get("Tus-Resumable") != ProtocolVersion {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	fs.headers = append(fs.headers, r.Header.Clone())

	switch r.Method {
	case http.MethodPost:
		fs.posts++
		if fs.failPost != nil {
			if status, body := fs.failPost(fs.posts); status != 0 {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(body))
				return
			}
		}
		length, _ := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
		md, err := DecodeMetadata(r.Header.Get("Upload-Metadata"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fs.seq++
		id := fmt.Sprintf("u%d", fs.seq)
		up := &fakeUpload{length: length, metadata: md}
		if r.Header.Get("Content-Type") == "application/offset+octet-stream" {
			data, _ := io.ReadAll(r.Body)
			up.data = data
		}
		fs.uploads[id] = up
		w.Header().Set("Location", "/resumable/"+id)
		w.Header().Set("Upload-Offset", strconv.Itoa(len(up.data)))
		w.WriteHeader(http.StatusCreated)

	case http.MethodHead:
		fs.heads++
		up, ok := fs.uploads[strings.TrimPrefix(r.URL.Path, "/resumable/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Upload-Offset", strconv.Itoa(len(up.data)))
		w.Header().Set("Upload-Length", strconv.FormatInt(up.length, 10))
		w.WriteHeader(http.StatusOK)

	case http.MethodPatch:
		fs.patches++
		if fs.failPatch != nil {
			if status := fs.failPatch(fs.patches); status != 0 {
				w.WriteHeader(status)
				return
			}
		}
		up, ok := fs.uploads[strings.TrimPrefix(r.URL.Path, "/resumable/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		off, _ := strconv.Atoi(r.Header.Get("Upload-Offset"))
		if off != len(up.data) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		data, _ := io.ReadAll(r.Body)
		up.data = append(up.data, data...)
		w.Header().Set("Upload-Offset", strconv.Itoa(len(up.data)))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (fs *fakeServer) only() *fakeUpload {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.uploads) != 1 {
		fs.t.Fatalf("ожидалась одна загрузка на сервере, найдено %d", len(fs.uploads))
	}
	for _, u := range fs.uploads {
		return u
	}
	return nil
}

// --- Тестовое хранилище отпечатков ---

type memStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]PreviousUpload
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]PreviousUpload)}
}

func (m *memStore) FindUploads(_ context.Context, fp string) ([]PreviousUpload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PreviousUpload
	for _, r := range m.records {
		if r.Fingerprint == fp {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) AddUpload(_ context.Context, u PreviousUpload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	u.Key = fmt.Sprintf("k%d", m.seq)
	m.records[u.Key] = u
	return u.Key, nil
}

func (m *memStore) RemoveUpload(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// --- Вспомогательные функции ---

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(srv *httptest.Server, store Store, rec *sleepRecorder) *Client {
	return New(Options{
		Endpoint:                   srv.URL + "/resumable",
		HTTPClient:                 srv.Client(),
		Store:                      store,
		ChunkSize:                  10,
		UploadDataDuringCreation:   true,
		RemoveFingerprintOnSuccess: true,
		Sleep:                      rec.sleep,
		Logger:                     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func newUpload(data []byte, fp string) *Upload {
	h := http.Header{}
	h.Set("Authorization", "Bearer token")
	h.Set("x-upsert", "true")
	return &Upload{
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
		Fingerprint: fp,
		Metadata: map[string]string{
			"bucketName":   "look",
			"objectName":   "a.bin",
			"cacheControl": "3600",
			"contentType":  "application/octet-stream",
		},
		Headers: h,
	}
}

// --- Тесты ---

func TestUpload_Chunks(t *testing.T) {
	fs, srv := newFakeServer(t)
	store := newMemStore()
	c := newTestClient(srv, store, &sleepRecorder{})

	data := []byte("0123456789abcdefghijklmnopqrstuvwxy") // 35 байт
	var progress []int64
	u := newUpload(data, "fp-1")
	u.OnProgress = func(sent, _ int64) { progress = append(progress, sent) }

	res, err := c.Upload(context.Background(), u)
	if err != nil {
		t.Fatalf("Upload() ошибка: %v", err)
	}

	got := fs.only()
	if !bytes.Equal(got.data, data) {
		t.Errorf("сервер получил %q, ожидается %q", got.data, data)
	}
	if got.metadata["bucketName"] != "look" || got.metadata["cacheControl"] != "3600" {
		t.Errorf("метаданные %v", got.metadata)
	}
	// Первый чанк уходит при создании, остальные три — PATCH.
	if fs.posts != 1 || fs.patches != 3 {
		t.Errorf("posts=%d patches=%d, ожидается 1 и 3", fs.posts, fs.patches)
	}
	if want := []int64{10, 20, 30, 35}; fmt.Sprint(progress) != fmt.Sprint(want) {
		t.Errorf("прогресс %v, ожидается %v", progress, want)
	}
	for _, h := range fs.headers {
		if h.Get("Authorization") != "Bearer token" || h.Get("X-Upsert") != "true" {
			t.Errorf("заголовки запроса %v", h)
		}
	}
	if res.Resumed || res.Retries != 0 {
		t.Errorf("результат %+v", res)
	}
	if !strings.HasSuffix(res.URL, "/resumable/u1") {
		t.Errorf("URL = %q", res.URL)
	}
	if store.len() != 0 {
		t.Errorf("отпечаток должен быть удалён после успеха, осталось %d", store.len())
	}
	last := res.History[len(res.History)-1]
	if last.To != upload.StateCompleted {
		t.Errorf("последнее состояние %q, ожидается completed", last.To)
	}
}

func TestUpload_ResumeFromStoredOffset(t *testing.T) {
	fs, srv := newFakeServer(t)
	store := newMemStore()

	data := []byte("0123456789abcdefghij")
	fs.uploads["u7"] = &fakeUpload{length: int64(len(data)), data: append([]byte(nil), data[:12]...)}
	_, _ = store.AddUpload(context.Background(), PreviousUpload{
		Fingerprint: "fp-resume",
		UploadURL:   srv.URL + "/resumable/u7",
		Size:        int64(len(data)),
	})

	c := newTestClient(srv, store, &sleepRecorder{})
	res, err := c.Upload(context.Background(), newUpload(data, "fp-resume"))
	if err != nil {
		t.Fatalf("Upload() ошибка: %v", err)
	}

	if !res.Resumed {
		t.Error("ожидалось продолжение загрузки")
	}
	if fs.posts != 0 {
		t.Errorf("posts = %d, новая загрузка не должна создаваться", fs.posts)
	}
	if fs.heads != 1 || fs.patches != 1 {
		t.Errorf("heads=%d patches=%d, ожидается 1 и 1", fs.heads, fs.patches)
	}
	if !bytes.Equal(fs.only().data, data) {
		t.Errorf("данные на сервере %q", fs.only().data)
	}
	if store.len() != 0 {
		t.Error("отпечаток должен быть удалён после успеха")
	}
}

func TestUpload_StaleRecordCreatesNew(t *testing.T) {
	fs, srv := newFakeServer(t)
	store := newMemStore()
	_, _ = store.AddUpload(context.Background(), PreviousUpload{
		Fingerprint: "fp-stale",
		UploadURL:   srv.URL + "/resumable/missing",
		Size:        5,
	})

	c := newTestClient(srv, store, &sleepRecorder{})
	res, err := c.Upload(context.Background(), newUpload([]byte("hello"), "fp-stale"))
	if err != nil {
		t.Fatalf("Upload() ошибка: %v", err)
	}
	if res.Resumed {
		t.Error("устаревшая запись не должна считаться продолжением")
	}
	if fs.posts != 1 {
		t.Errorf("posts = %d, ожидается 1", fs.posts)
	}
	if store.len() != 0 {
		t.Errorf("записей в хранилище %d, ожидается 0", store.len())
	}
}

func TestUpload_RetryOnServerError(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.failPatch = func(n int) int {
		if n == 1 {
			return http.StatusInternalServerError
		}
		return 0
	}
	rec := &sleepRecorder{}
	c := newTestClient(srv, newMemStore(), rec)

	data := []byte("0123456789abcdefghij")
	res, err := c.Upload(context.Background(), newUpload(data, "fp-retry"))
	if err != nil {
		t.Fatalf("Upload() ошибка: %v", err)
	}
	if res.Retries != 1 {
		t.Errorf("Retries = %d, ожидается 1", res.Retries)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 0 {
		t.Errorf("паузы %v, ожидается [0s]", rec.delays)
	}
	if !bytes.Equal(fs.only().data, data) {
		t.Errorf("данные на сервере %q", fs.only().data)
	}

	var paused bool
	for _, h := range res.History {
		if h.To == upload.StatePaused {
			paused = true
		}
	}
	if !paused {
		t.Error("в истории нет перехода в paused")
	}
}

func TestUpload_RetryScheduleExhausted(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.failPost = func(int) (int, string) { return http.StatusServiceUnavailable, "unavailable" }
	rec := &sleepRecorder{}
	c := newTestClient(srv, newMemStore(), rec)

	_, err := c.Upload(context.Background(), newUpload([]byte("data"), "fp-x"))
	var tusErr *Error
	if !errors.As(err, &tusErr) || tusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ожидалась tus.Error 503, получено %v", err)
	}
	if fs.posts != 1+len(DefaultRetryDelays) {
		t.Errorf("posts = %d, ожидается %d", fs.posts, 1+len(DefaultRetryDelays))
	}
	if fmt.Sprint(rec.delays) != fmt.Sprint(DefaultRetryDelays) {
		t.Errorf("паузы %v, ожидается %v", rec.delays, DefaultRetryDelays)
	}
}

func TestUpload_NoRetryOnAuthError(t *testing.T) {
	fs, srv := newFakeServer(t)
	body := `{"statusCode":"403","error":"Unauthorized","message":"new row violates row-level security policy"}`
	fs.failPost = func(int) (int, string) { return http.StatusForbidden, body }
	rec := &sleepRecorder{}
	c := newTestClient(srv, newMemStore(), rec)

	_, err := c.Upload(context.Background(), newUpload([]byte("data"), "fp-auth"))
	var tusErr *Error
	if !errors.As(err, &tusErr) {
		t.Fatalf("ожидалась tus.Error, получено %v", err)
	}
	if tusErr.StatusCode != http.StatusForbidden || string(tusErr.Body) != body {
		t.Errorf("ошибка %+v", tusErr)
	}
	if !strings.Contains(err.Error(), body) {
		t.Errorf("текст ошибки не содержит тело ответа: %q", err.Error())
	}
	if fs.posts != 1 || len(rec.delays) != 0 {
		t.Errorf("posts=%d паузы=%v, повторов быть не должно", fs.posts, rec.delays)
	}
}

func TestUpload_ContextCancelled(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newTestClient(srv, nil, &sleepRecorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Upload(ctx, newUpload([]byte("data"), "")); err == nil {
		t.Fatal("ожидалась ошибка отменённого контекста")
	}
}

func TestUpload_EmptyFile(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := newTestClient(srv, nil, &sleepRecorder{})

	if _, err := c.Upload(context.Background(), newUpload(nil, "")); err != nil {
		t.Fatalf("Upload() ошибка: %v", err)
	}
	if fs.posts != 1 || fs.patches != 0 {
		t.Errorf("posts=%d patches=%d, ожидается 1 и 0", fs.posts, fs.patches)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	md := map[string]string{"objectName": "фото 1.png", "cacheControl": "3600", "empty": ""}
	enc := EncodeMetadata(md)
	if !strings.HasPrefix(enc, "cacheControl ") {
		t.Errorf("ключи должны идти по алфавиту: %q", enc)
	}
	dec, err := DecodeMetadata(enc)
	if err != nil {
		t.Fatalf("DecodeMetadata() ошибка: %v", err)
	}
	for k, v := range md {
		if dec[k] != v {
			t.Errorf("%s = %q, ожидается %q", k, dec[k], v)
		}
	}
	if _, err := DecodeMetadata("key !!!"); err == nil {
		t.Error("ожидалась ошибка для некорректного base64")
	}
}

func TestFingerprint(t *testing.T) {
	f := FileIdentity{Name: "a.png", MimeType: "image/png", Size: 10, ModTime: time.Unix(100, 0)}
	a := Fingerprint(f, "http://x/resumable", "user-1")
	if a != Fingerprint(f, "http://x/resumable", "user-1") {
		t.Error("отпечаток должен быть детерминированным")
	}
	if a == Fingerprint(f, "http://x/resumable", "user-2") {
		t.Error("отпечатки разных пользователей должны различаться")
	}
	f.Size = 11
	if a == Fingerprint(f, "http://x/resumable", "user-1") {
		t.Error("отпечатки файлов разного размера должны различаться")
	}
}
