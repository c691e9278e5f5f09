// Пакет tus — клиент протокола resumable-загрузки tus 1.0.0.
//
// Загрузка создаётся POST-запросом (первый чанк передаётся сразу при
// создании), продолжается PATCH-запросами с Upload-Offset, текущее
// смещение восстанавливается HEAD-запросом. URL незавершённых загрузок
// хранятся в Store по отпечатку файла, что позволяет продолжить загрузку
// после обрыва или перезапуска.
package tus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bigkaa/pocketshare/internal/domain/upload"
)

// ProtocolVersion — версия протокола tus.
const ProtocolVersion = "1.0.0"

// ChunkSize — размер чанка, который требует resumable-endpoint backend.
const ChunkSize int64 = 6 * 1024 * 1024

// DefaultRetryDelays — паузы перед повторными попытками после временной ошибки.
var DefaultRetryDelays = []time.Duration{
	0,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
}

// PreviousUpload — сохранённая незавершённая загрузка.
type PreviousUpload struct {
	// Key — ключ записи в Store
	Key string
	// Fingerprint — отпечаток файла и получателя
	Fingerprint string
	// UploadURL — URL загрузки, выданный сервером
	UploadURL string
	// Size — полный размер файла
	Size int64
	// Metadata — метаданные загрузки
	Metadata map[string]string
	// CreatedAt — время создания загрузки
	CreatedAt time.Time
}

// Store — хранилище URL незавершённых загрузок.
type Store interface {
	// FindUploads возвращает загрузки с указанным отпечатком, новые первыми.
	FindUploads(ctx context.Context, fingerprint string) ([]PreviousUpload, error)
	// AddUpload сохраняет загрузку и возвращает ключ записи.
	AddUpload(ctx context.Context, u PreviousUpload) (string, error)
	// RemoveUpload удаляет запись по ключу.
	RemoveUpload(ctx context.Context, key string) error
}

// Upload — параметры загрузки одного файла.
type Upload struct {
	// Reader — содержимое файла
	Reader io.ReaderAt
	// Size — размер содержимого
	Size int64
	// Fingerprint — отпечаток для поиска незавершённой загрузки (пустой — без продолжения)
	Fingerprint string
	// Metadata — метаданные, передаются в Upload-Metadata
	Metadata map[string]string
	// Headers — дополнительные заголовки каждого запроса (authorization, x-upsert)
	Headers http.Header
	// OnProgress вызывается после каждого принятого чанка
	OnProgress func(sent, total int64)
}

// Result — итог успешной загрузки.
type Result struct {
	// URL — адрес загрузки на сервере
	URL string
	// Resumed — загрузка продолжена с сохранённого смещения
	Resumed bool
	// Retries — число выполненных повторов
	Retries int
	// History — переходы автомата сессии
	History []upload.TransitionRecord
}

// Options — параметры клиента.
type Options struct {
	// Endpoint — URL создания загрузок
	Endpoint string
	// HTTPClient — HTTP-клиент (nil — http.DefaultClient)
	HTTPClient *http.Client
	// Store — хранилище незавершённых загрузок (nil — без продолжения)
	Store Store
	// ChunkSize — размер чанка (0 — ChunkSize)
	ChunkSize int64
	// RetryDelays — паузы перед повторами (nil — DefaultRetryDelays)
	RetryDelays []time.Duration
	// UploadDataDuringCreation — передавать первый чанк в запросе создания
	UploadDataDuringCreation bool
	// RemoveFingerprintOnSuccess — удалять запись Store после успешной загрузки
	RemoveFingerprintOnSuccess bool
	// Sleep — ожидание между повторами (nil — по таймеру с учётом контекста)
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger — логгер
	Logger *slog.Logger
}

// Client — клиент tus.
type Client struct {
	opts   Options
	logger *slog.Logger
}

// New создаёт клиент tus.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = ChunkSize
	}
	if opts.RetryDelays == nil {
		opts.RetryDelays = DefaultRetryDelays
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:   opts,
		logger: logger.With(slog.String("component", "tus_client")),
	}
}

// session — состояние одной загрузки между попытками.
type session struct {
	u           *Upload
	sm          *upload.StateMachine
	url         string
	key         string
	offset      int64
	triedResume bool
	resumed     bool
}

// Upload загружает файл, продолжая незавершённую загрузку при наличии.
// Временные ошибки (сетевые, 5xx, 409, 423) повторяются по расписанию
// RetryDelays; счётчик повторов сбрасывается, если после прошлой ошибки
// смещение выросло.
func (c *Client) Upload(ctx context.Context, u *Upload) (*Result, error) {
	if u.Reader == nil {
		return nil, errors.New("tus: не задан источник данных")
	}
	if u.Size < 0 {
		return nil, fmt.Errorf("tus: недопустимый размер %d", u.Size)
	}

	s := &session{u: u, sm: upload.NewStateMachine()}

	attempt := 0
	retries := 0
	offsetBeforeRetry := int64(0)

	for {
		err := c.run(ctx, s)
		if err == nil {
			break
		}

		if s.offset > offsetBeforeRetry {
			attempt = 0
		}
		if !c.shouldRetry(ctx, err, attempt) {
			_ = s.sm.TransitionTo(upload.StateFailed, s.offset, err.Error())
			return nil, err
		}

		delay := c.opts.RetryDelays[attempt]
		attempt++
		retries++
		offsetBeforeRetry = s.offset

		if terr := s.sm.TransitionTo(upload.StatePaused, s.offset, err.Error()); terr != nil {
			return nil, terr
		}
		c.logger.Warn("Временная ошибка загрузки, повтор",
			slog.String("upload_url", s.url),
			slog.Int64("offset", s.offset),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		if serr := c.opts.Sleep(ctx, delay); serr != nil {
			_ = s.sm.TransitionTo(upload.StateFailed, s.offset, serr.Error())
			return nil, serr
		}
	}

	if err := s.sm.TransitionTo(upload.StateCompleted, s.offset, ""); err != nil {
		return nil, err
	}

	if c.opts.RemoveFingerprintOnSuccess && c.opts.Store != nil && s.key != "" {
		if err := c.opts.Store.RemoveUpload(ctx, s.key); err != nil {
			c.logger.Warn("Не удалось удалить отпечаток загрузки",
				slog.String("key", s.key),
				slog.String("error", err.Error()),
			)
		}
	}

	return &Result{
		URL:     s.url,
		Resumed: s.resumed,
		Retries: retries,
		History: s.sm.History(),
	}, nil
}

// run выполняет одну попытку: поиск/проверку/создание загрузки и
// передачу оставшихся чанков.
func (c *Client) run(ctx context.Context, s *session) error {
	if err := s.sm.TransitionTo(upload.StateUploading, s.offset, ""); err != nil {
		return err
	}

	// 1. Поиск незавершённой загрузки (один раз за сессию)
	if s.url == "" && !s.triedResume {
		s.triedResume = true
		c.findPrevious(ctx, s)
	}

	// 2. Восстановление смещения по существующему URL
	if s.url != "" {
		offset, err := c.head(ctx, s)
		switch {
		case err == nil:
			s.offset = offset
		case isStale(err):
			c.logger.Info("Сохранённая загрузка недоступна, создаём новую",
				slog.String("upload_url", s.url),
			)
			c.forget(ctx, s)
		default:
			return err
		}
	}

	// 3. Создание новой загрузки
	if s.url == "" {
		if err := c.create(ctx, s); err != nil {
			return err
		}
	}

	// 4. Передача оставшихся чанков строго по порядку
	for s.offset < s.u.Size {
		if err := c.patch(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// findPrevious выбирает первую сохранённую загрузку с тем же отпечатком.
func (c *Client) findPrevious(ctx context.Context, s *session) {
	if c.opts.Store == nil || s.u.Fingerprint == "" {
		return
	}
	prev, err := c.opts.Store.FindUploads(ctx, s.u.Fingerprint)
	if err != nil {
		c.logger.Warn("Поиск незавершённых загрузок не удался",
			slog.String("error", err.Error()),
		)
		return
	}
	for _, p := range prev {
		if p.Size != s.u.Size {
			continue
		}
		s.url = p.UploadURL
		s.key = p.Key
		s.resumed = true
		c.logger.Debug("Найдена незавершённая загрузка",
			slog.String("upload_url", p.UploadURL),
		)
		return
	}
}

// forget удаляет устаревшую запись и сбрасывает URL.
func (c *Client) forget(ctx context.Context, s *session) {
	if c.opts.Store != nil && s.key != "" {
		if err := c.opts.Store.RemoveUpload(ctx, s.key); err != nil {
			c.logger.Warn("Не удалось удалить устаревший отпечаток",
				slog.String("key", s.key),
				slog.String("error", err.Error()),
			)
		}
	}
	s.url = ""
	s.key = ""
	s.offset = 0
	s.resumed = false
}

// create создаёт загрузку POST-запросом, при необходимости передавая первый чанк.
func (c *Client) create(ctx context.Context, s *session) error {
	var body io.Reader = http.NoBody
	var sent int64
	if c.opts.UploadDataDuringCreation {
		sent = min(c.opts.ChunkSize, s.u.Size)
		if sent > 0 {
			body = io.NewSectionReader(s.u.Reader, 0, sent)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, body)
	if err != nil {
		return fmt.Errorf("tus: создание запроса POST: %w", err)
	}
	c.setHeaders(req, s.u)
	req.Header.Set("Upload-Length", strconv.FormatInt(s.u.Size, 10))
	if len(s.u.Metadata) > 0 {
		req.Header.Set("Upload-Metadata", EncodeMetadata(s.u.Metadata))
	}
	if c.opts.UploadDataDuringCreation {
		req.Header.Set("Content-Type", "application/offset+octet-stream")
		req.ContentLength = sent
	}

	resp, err := c.opts.HTTPClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return &Error{Op: "create", Err: err}
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError("create", resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return &Error{Op: "create", StatusCode: resp.StatusCode, Err: errors.New("в ответе нет заголовка Location")}
	}
	uploadURL, err := resolveURL(c.opts.Endpoint, location)
	if err != nil {
		return &Error{Op: "create", StatusCode: resp.StatusCode, Err: err}
	}
	s.url = uploadURL
	s.offset = 0

	if c.opts.UploadDataDuringCreation {
		offset, err := parseOffset(resp.Header.Get("Upload-Offset"))
		if err != nil {
			// Сервер не принял данные при создании, продолжаем PATCH с нуля.
			offset = 0
		}
		s.offset = offset
		c.progress(s)
	}

	c.remember(ctx, s)

	c.logger.Debug("Загрузка создана",
		slog.String("upload_url", s.url),
		slog.Int64("size", s.u.Size),
		slog.Int64("offset", s.offset),
	)
	return nil
}

// remember сохраняет URL новой загрузки в Store.
func (c *Client) remember(ctx context.Context, s *session) {
	if c.opts.Store == nil || s.u.Fingerprint == "" {
		return
	}
	key, err := c.opts.Store.AddUpload(ctx, PreviousUpload{
		Fingerprint: s.u.Fingerprint,
		UploadURL:   s.url,
		Size:        s.u.Size,
		Metadata:    s.u.Metadata,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		c.logger.Warn("Не удалось сохранить отпечаток загрузки",
			slog.String("error", err.Error()),
		)
		return
	}
	s.key = key
}

// head запрашивает текущее смещение загрузки.
func (c *Client) head(ctx context.Context, s *session) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("tus: создание запроса HEAD: %w", err)
	}
	c.setHeaders(req, s.u)

	resp, err := c.opts.HTTPClient.Do(req) //nolint:gosec // G704: URL выдан сервером загрузок
	if err != nil {
		return 0, &Error{Op: "head", Err: err}
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, newStatusError("head", resp)
	}

	offset, err := parseOffset(resp.Header.Get("Upload-Offset"))
	if err != nil {
		return 0, &Error{Op: "head", StatusCode: resp.StatusCode, Err: err}
	}
	if length := resp.Header.Get("Upload-Length"); length != "" {
		if n, perr := strconv.ParseInt(length, 10, 64); perr == nil && n != s.u.Size {
			return 0, &Error{Op: "head", StatusCode: http.StatusGone,
				Err: fmt.Errorf("размер загрузки на сервере %d, локально %d", n, s.u.Size)}
		}
	}
	return offset, nil
}

// patch передаёт один чанк начиная с текущего смещения.
func (c *Client) patch(ctx context.Context, s *session) error {
	n := min(c.opts.ChunkSize, s.u.Size-s.offset)
	body := io.NewSectionReader(s.u.Reader, s.offset, n)

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.url, body)
	if err != nil {
		return fmt.Errorf("tus: создание запроса PATCH: %w", err)
	}
	c.setHeaders(req, s.u)
	req.Header.Set("Upload-Offset", strconv.FormatInt(s.offset, 10))
	req.Header.Set("Content-Type", "application/offset+octet-stream")
	req.ContentLength = n

	resp, err := c.opts.HTTPClient.Do(req) //nolint:gosec // G704: URL выдан сервером загрузок
	if err != nil {
		return &Error{Op: "patch", Err: err}
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError("patch", resp)
	}

	offset, err := parseOffset(resp.Header.Get("Upload-Offset"))
	if err != nil {
		return &Error{Op: "patch", StatusCode: resp.StatusCode, Err: err}
	}
	if offset <= s.offset {
		return &Error{Op: "patch", StatusCode: resp.StatusCode,
			Err: fmt.Errorf("смещение не изменилось: %d", offset)}
	}
	s.offset = offset
	c.progress(s)
	return nil
}

func (c *Client) progress(s *session) {
	c.logger.Debug("Чанк принят",
		slog.String("upload_url", s.url),
		slog.Int64("offset", s.offset),
		slog.Int64("size", s.u.Size),
	)
	if s.u.OnProgress != nil {
		s.u.OnProgress(s.offset, s.u.Size)
	}
}

func (c *Client) setHeaders(req *http.Request, u *Upload) {
	for k, vals := range u.Headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Tus-Resumable", ProtocolVersion)
}

// shouldRetry решает, повторять ли попытку после ошибки.
func (c *Client) shouldRetry(ctx context.Context, err error, attempt int) bool {
	if ctx.Err() != nil || attempt >= len(c.opts.RetryDelays) {
		return false
	}
	var tusErr *Error
	if !errors.As(err, &tusErr) {
		return false
	}
	return tusErr.Temporary()
}

// isStale сообщает, что сохранённая загрузка больше не существует на сервере.
func isStale(err error) bool {
	var tusErr *Error
	if !errors.As(err, &tusErr) {
		return false
	}
	switch tusErr.StatusCode {
	case http.StatusNotFound, http.StatusGone, http.StatusForbidden:
		return true
	}
	return false
}

func parseOffset(v string) (int64, error) {
	if v == "" {
		return 0, errors.New("в ответе нет заголовка Upload-Offset")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("некорректный Upload-Offset: %q", v)
	}
	return n, nil
}

func resolveURL(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("разбор endpoint: %w", err)
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("разбор Location: %w", err)
	}
	return b.ResolveReference(l).String(), nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
