package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/pocketshare/internal/domain/model"
	"github.com/bigkaa/pocketshare/internal/service"
	"github.com/bigkaa/pocketshare/internal/supabase"
	"github.com/bigkaa/pocketshare/internal/ui/auth"
	"github.com/bigkaa/pocketshare/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/pocketshare/internal/ui/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMain(m *testing.M) {
	logger := testLogger()
	if err := i18n.LoadFromEmbedFS(i18n.Init(logger), logger); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeBackend struct {
	mu          sync.Mutex
	session     *supabase.Session
	signInErr   error
	signOutErr  error
	signOutWith []string
}

func (f *fakeBackend) SignInWithPassword(_ context.Context, email, password string) (*supabase.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.session, nil
}

func (f *fakeBackend) SignOut(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutWith = append(f.signOutWith, accessToken)
	return f.signOutErr
}

type recordedEvents struct {
	mu     sync.Mutex
	events []service.SessionEvent
}

func (r *recordedEvents) Publish(ev service.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordedEvents) kinds() []service.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]service.AuthEvent, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Event)
	}
	return out
}

type forgetter struct{ tokens []string }

func (f *forgetter) Forget(token string) { f.tokens = append(f.tokens, token) }

type releaser struct{ keys []string }

func (r *releaser) Release(key string) { r.keys = append(r.keys, key) }

type authFixture struct {
	backend  *fakeBackend
	sm       *auth.SessionManager
	events   *recordedEvents
	forget   *forgetter
	released *releaser
	handler  *AuthHandler
}

func newAuthFixture(t *testing.T, limiter *LoginLimiter) *authFixture {
	t.Helper()
	sm, err := auth.NewSessionManager("", false)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	f := &authFixture{
		backend: &fakeBackend{session: &supabase.Session{
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    time.Now().Add(time.Hour).Unix(),
			User:         supabase.User{ID: "user-1", Email: "user@example.com"},
		}},
		sm:       sm,
		events:   &recordedEvents{},
		forget:   &forgetter{},
		released: &releaser{},
	}
	f.handler = NewAuthHandler(f.backend, sm, f.events, limiter, f.forget, testLogger(), f.released)
	return f
}

func loginRequest(target, email, password string) *http.Request {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/download?view=all", "/download?view=all"},
		{"/upload", "/upload"},
		{"https://evil.example/", "/"},
		{"//evil.example/path", "/"},
		{"/\\evil.example", "/"},
		{"download", "/"},
		{"javascript:alert(1)", "/"},
	}
	for _, tt := range tests {
		if got := SafeRedirect(tt.in); got != tt.want {
			t.Errorf("SafeRedirect(%q) = %q, ожидается %q", tt.in, got, tt.want)
		}
	}
}

func TestHandleLogin_Success(t *testing.T) {
	f := newAuthFixture(t, nil)

	rec := httptest.NewRecorder()
	f.handler.HandleLogin(rec, loginRequest("/login?redirect=%2Fdownload", "user@example.com", "secret"))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, ожидается 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/download" {
		t.Errorf("Location = %q, ожидается /download", loc)
	}

	cookie := sessionCookie(t, rec)
	if cookie == nil {
		t.Fatal("cookie сессии не установлен")
	}
	sess, err := f.sm.Decrypt(cookie.Value)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if sess.UserID != "user-1" || sess.AccessToken != "access" {
		t.Errorf("неверная сессия: %+v", sess)
	}

	if kinds := f.events.kinds(); len(kinds) != 1 || kinds[0] != service.EventSignedIn {
		t.Errorf("события = %v, ожидается [SIGNED_IN]", kinds)
	}
}

func TestHandleLogin_ExternalRedirectIgnored(t *testing.T) {
	f := newAuthFixture(t, nil)

	rec := httptest.NewRecorder()
	f.handler.HandleLogin(rec, loginRequest("/login?redirect=https%3A%2F%2Fevil.example", "user@example.com", "secret"))

	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, ожидается /", loc)
	}
}

func TestHandleLogin_BackendErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantText   string
	}{
		{
			name:       "неверный пароль",
			err:        &supabase.APIError{StatusCode: 400, Code: "invalid_credentials", Message: "Invalid login credentials"},
			wantStatus: http.StatusUnauthorized,
			wantText:   "Invalid login credentials",
		},
		{
			name:       "backend недоступен",
			err:        errors.New("dial tcp: connection refused"),
			wantStatus: http.StatusBadGateway,
			wantText:   "Authentication service is unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t, nil)
			f.backend.signInErr = tt.err

			rec := httptest.NewRecorder()
			f.handler.HandleLogin(rec, loginRequest("/login", "user@example.com", "bad"))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantText) {
				t.Errorf("нет %q на странице", tt.wantText)
			}
			if !strings.Contains(rec.Body.String(), `value="user@example.com"`) {
				t.Error("email не сохранён в форме")
			}
			if sessionCookie(t, rec) != nil {
				t.Error("cookie сессии не должен устанавливаться")
			}
			if len(f.events.kinds()) != 0 {
				t.Error("событие входа не публикуется при ошибке")
			}
		})
	}
}

func TestHandleLogin_RateLimited(t *testing.T) {
	f := newAuthFixture(t, NewLoginLimiter(1, 1))
	f.backend.signInErr = &supabase.APIError{StatusCode: 400, Message: "Invalid login credentials"}

	first := httptest.NewRecorder()
	f.handler.HandleLogin(first, loginRequest("/login", "a@b.c", "x"))
	if first.Code == http.StatusTooManyRequests {
		t.Fatal("первая попытка не должна ограничиваться")
	}

	second := httptest.NewRecorder()
	f.handler.HandleLogin(second, loginRequest("/login", "a@b.c", "x"))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, ожидается 429", second.Code)
	}

	// Другой адрес ограничивается отдельно
	other := loginRequest("/login", "a@b.c", "x")
	other.RemoteAddr = "198.51.100.7:4000"
	third := httptest.NewRecorder()
	f.handler.HandleLogin(third, other)
	if third.Code == http.StatusTooManyRequests {
		t.Error("лимит другого адреса не должен расходоваться")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if ip := ClientIP(req); ip != "192.0.2.1" {
		t.Errorf("ClientIP = %q", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if ip := ClientIP(req); ip != "203.0.113.5" {
		t.Errorf("ClientIP с X-Forwarded-For = %q", ip)
	}
}

func TestHandleLoginPage(t *testing.T) {
	f := newAuthFixture(t, nil)

	rec := httptest.NewRecorder()
	f.handler.HandleLoginPage(rec, httptest.NewRequest(http.MethodGet, "/login?redirect=%2Fupload", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `action="/login?redirect=%2Fupload"`) {
		t.Error("форма не сохраняет redirect")
	}

	// Действующая сессия — сразу переход
	sess := auth.NewSessionData(f.backend.session)
	value, err := f.sm.Encrypt(sess)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/login?redirect=%2Fupload", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: value})
	rec = httptest.NewRecorder()
	f.handler.HandleLoginPage(rec, req)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/upload" {
		t.Errorf("status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHandleLogout(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.backend.signOutErr = errors.New("backend недоступен")

	sess := auth.NewSessionData(f.backend.session)
	value, err := f.sm.Encrypt(sess)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: value})
	rec := httptest.NewRecorder()
	f.handler.HandleLogout(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != uimiddleware.LoginPath {
		t.Errorf("status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if c := sessionCookie(t, rec); c == nil || c.MaxAge >= 0 {
		t.Error("cookie сессии должен удаляться даже при ошибке backend")
	}
	if len(f.backend.signOutWith) != 1 || f.backend.signOutWith[0] != "access" {
		t.Errorf("SignOut вызван с %v", f.backend.signOutWith)
	}
	if len(f.forget.tokens) != 1 {
		t.Error("токен не удалён из кэша проверки")
	}
	if len(f.released.keys) != 1 || f.released.keys[0] != sess.ID {
		t.Errorf("ресурсы сессии не освобождены: %v", f.released.keys)
	}
	if kinds := f.events.kinds(); len(kinds) != 1 || kinds[0] != service.EventSignedOut {
		t.Errorf("события = %v, ожидается [SIGNED_OUT]", kinds)
	}
}

func TestHandleLogout_NoSession(t *testing.T) {
	f := newAuthFixture(t, nil)

	rec := httptest.NewRecorder()
	f.handler.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d", rec.Code)
	}
	if len(f.backend.signOutWith) != 0 || len(f.events.kinds()) != 0 {
		t.Error("без сессии backend не вызывается и события не публикуются")
	}
}

func TestHandleSetLanguage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/set-language", strings.NewReader("lang=ru"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "http://example.com/download?x=1")
	rec := httptest.NewRecorder()
	HandleSetLanguage(rec, req)

	if rec.Header().Get("Location") != "/download?x=1" {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	var lang string
	for _, c := range rec.Result().Cookies() {
		if c.Name == i18n.LangCookieName {
			lang = c.Value
		}
	}
	if lang != "ru" {
		t.Errorf("cookie lang = %q", lang)
	}

	// Чужой Referer не используется
	req = httptest.NewRequest(http.MethodPost, "/set-language", strings.NewReader("lang=xx"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "https://evil.example/")
	rec = httptest.NewRecorder()
	HandleSetLanguage(rec, req)
	if rec.Header().Get("Location") != "/" {
		t.Errorf("Location = %q, ожидается /", rec.Header().Get("Location"))
	}
}

// --- Страницы ---

type pageStore struct {
	entries []model.ObjectEntry
	err     error
}

func (s *pageStore) ListObjects(_ context.Context, _ string) ([]model.ObjectEntry, error) {
	return s.entries, s.err
}

func (s *pageStore) DownloadURL(_ context.Context, name string) (string, error) {
	return "http://files/" + name, nil
}

func newPagesHandler(t *testing.T, store *pageStore) (*PagesHandler, *service.SelectionService) {
	t.Helper()
	staging, err := service.NewStagingService(t.TempDir(), 1<<20, time.Hour, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(staging.Close)
	selections := service.NewSelectionService(time.Hour)
	return NewPagesHandler(service.NewListingService(store, testLogger()), selections, staging, testLogger()), selections
}

func withSession(r *http.Request) *http.Request {
	return r.WithContext(uimiddleware.WithSession(r.Context(), &auth.SessionData{
		ID:          "sess-1",
		AccessToken: "access",
		UserID:      "user-1",
		Email:       "user@example.com",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	}))
}

func TestHandleDownload(t *testing.T) {
	store := &pageStore{entries: []model.ObjectEntry{
		{ID: "1", Name: "a.png", Metadata: &model.ObjectMetadata{Size: 10, MimeType: "image/png"}},
		{ID: "2", Name: "b.txt", Metadata: &model.ObjectMetadata{Size: 20, MimeType: "text/plain"}},
	}}
	h, selections := newPagesHandler(t, store)
	selections.For("sess-1").Toggle("2")

	rec := httptest.NewRecorder()
	h.HandleDownload(rec, withSession(httptest.NewRequest(http.MethodGet, "/download", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"a.png", "b.txt", `value="2" checked`, "Selected: 1", "user@example.com"} {
		if !strings.Contains(body, want) {
			t.Errorf("нет %q на странице", want)
		}
	}
}

func TestHandleDownload_ListingError(t *testing.T) {
	h, _ := newPagesHandler(t, &pageStore{err: &supabase.APIError{StatusCode: 400, Message: "Bucket not found"}})

	rec := httptest.NewRecorder()
	h.HandleDownload(rec, withSession(httptest.NewRequest(http.MethodGet, "/download", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Bucket not found") {
		t.Error("ошибка листинга не показана")
	}
}

func TestPages_RedirectWithoutSession(t *testing.T) {
	h, _ := newPagesHandler(t, &pageStore{})

	rec := httptest.NewRecorder()
	h.HandleUpload(rec, httptest.NewRequest(http.MethodGet, "/upload", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login?redirect=%2Fupload" {
		t.Errorf("status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

// --- SSE ---

func TestHandleAuthEvents(t *testing.T) {
	watcher := service.NewAuthWatcher(testLogger())
	t.Cleanup(watcher.Close)
	h := NewEventsHandler(watcher, time.Hour, testLogger())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleAuthEvents(w, withSession(r))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, service.SessionEvent) {
		t.Helper()
		var name string
		var ev service.SessionEvent
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("чтение потока: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
					t.Fatalf("разбор события: %v", err)
				}
			case line == "" && name != "":
				return name, ev
			}
		}
	}

	name, ev := readEvent()
	if name != string(service.EventInitialSession) || ev.UserID != "user-1" {
		t.Fatalf("первое событие = %s %+v, ожидается INITIAL_SESSION", name, ev)
	}

	// Событие другого пользователя не доставляется
	watcher.Publish(service.SessionEvent{Event: service.EventSignedIn, UserID: "user-2"})
	watcher.Publish(service.SessionEvent{Event: service.EventSignedOut, UserID: "user-1"})

	name, _ = readEvent()
	if name != string(service.EventSignedOut) {
		t.Errorf("событие = %s, ожидается SIGNED_OUT", name)
	}
}
