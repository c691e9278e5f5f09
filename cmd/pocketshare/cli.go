// cli.go — команды ls, upload и download: те же операции, что и в
// веб-интерфейсе, от имени пользователя PS_EMAIL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bigkaa/pocketshare/internal/config"
	"github.com/bigkaa/pocketshare/internal/domain/filegroup"
	"github.com/bigkaa/pocketshare/internal/domain/model"
	"github.com/bigkaa/pocketshare/internal/service"
	"github.com/bigkaa/pocketshare/internal/supabase"
)

// cliEnv — конфигурация и вошедший пользователь CLI-команды.
type cliEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *supabase.Client
	store   service.ObjectStore
	session *supabase.Session
}

// principal возвращает пользователя для сервисов загрузки.
func (e *cliEnv) principal() service.Principal {
	return service.Principal{UserID: e.session.User.ID, AccessToken: e.session.AccessToken}
}

// signOut завершает сессию CLI на стороне backend.
func (e *cliEnv) signOut() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.client.SignOut(ctx, e.session.AccessToken); err != nil {
		e.logger.Debug("Ошибка выхода", slog.String("error", err.Error()))
	}
}

// errNoCredentials — для CLI не заданы PS_EMAIL или PS_PASSWORD.
var errNoCredentials = errors.New("для команд CLI задайте PS_EMAIL и PS_PASSWORD")

// openCLI загружает конфигурацию и входит по PS_EMAIL/PS_PASSWORD.
// Логи CLI пишутся в stderr, чтобы не смешиваться с выводом команды.
func openCLI(ctx context.Context) (*cliEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	if cfg.Email == "" || cfg.Password == "" {
		return nil, errNoCredentials
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	client, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.CACertPath, cfg.BackendTimeout, logger)
	if err != nil {
		return nil, err
	}
	store, err := openObjectStore(cfg, client, logger)
	if err != nil {
		return nil, err
	}

	session, err := client.SignInWithPassword(ctx, cfg.Email, cfg.Password)
	if err != nil {
		return nil, err
	}
	logger.Debug("Вход выполнен", slog.String("user_id", session.User.ID))

	return &cliEnv{cfg: cfg, logger: logger, client: client, store: store, session: session}, nil
}

// newListCommand — pocketshare ls.
func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "Показать файлы bucket по группам",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openCLI(cmd.Context())
			if err != nil {
				return err
			}
			defer env.signOut()

			listing, err := service.NewListingService(env.store, env.logger).Fetch(cmd.Context(), env.session.AccessToken)
			if err != nil {
				return err
			}
			return printListing(cmd.OutOrStdout(), listing)
		},
	}
}

// printListing выводит файлы секциями в порядке групп.
func printListing(out io.Writer, listing *service.Listing) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, info := range filegroup.All() {
		files := listing.Groups[info.Group]
		if len(files) == 0 {
			continue
		}
		fmt.Fprintf(tw, "%s (%d)\n", info.Label, len(files))
		for _, f := range files {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", f.Name, f.SizeFormatted, f.DateFormatted, f.MimeType)
		}
	}
	if len(listing.Files) == 0 {
		fmt.Fprintln(tw, "Файлов нет")
	}
	return tw.Flush()
}

// newUploadCommand — pocketshare upload FILE...
func newUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Загрузить файлы в bucket (с докачкой прерванных загрузок)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := localFiles(args)
			if err != nil {
				return err
			}

			env, err := openCLI(cmd.Context())
			if err != nil {
				return err
			}
			defer env.signOut()

			// Отпечатки в том же хранилище, что и у сервера: прерванная
			// загрузка продолжается со следующего запуска
			fps, err := openFingerprints(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return err
			}
			defer fps.Close()

			uploads := service.NewUploadService(service.UploadOptions{
				Endpoint:   env.cfg.ResumableEndpoint(),
				Bucket:     env.cfg.Bucket,
				HTTPClient: env.client.TransferClient(),
				Store:      fps.store,
			}, nil, env.logger)

			if err := uploads.UploadAll(cmd.Context(), env.principal(), files); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Загружено файлов: %d\n", len(files))
			return nil
		},
	}
}

// localFiles описывает локальные файлы для загрузки. Ключ объекта — имя
// файла, поэтому файлы с одинаковыми именем и размером загружаются один раз.
func localFiles(paths []string) ([]model.StagedUploadFile, error) {
	files := make([]model.StagedUploadFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s: каталог, ожидался файл", p)
		}
		files = append(files, model.StagedUploadFile{
			ID:        uuid.NewString(),
			Name:      filepath.Base(p),
			SizeBytes: info.Size(),
			MimeType:  mime.TypeByExtension(filepath.Ext(p)),
			ModTime:   info.ModTime(),
			Path:      p,
		})
	}
	return service.DedupStaged(files), nil
}

// newDownloadCommand — pocketshare download [--out DIR] NAME...
func newDownloadCommand() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "download [--out DIR] NAME...",
		Short: "Скачать файлы bucket в каталог",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, names []string) error {
			env, err := openCLI(cmd.Context())
			if err != nil {
				return err
			}
			defer env.signOut()

			saver, err := service.NewDirSaver(outDir)
			if err != nil {
				return err
			}
			defer saver.Close()

			out := cmd.OutOrStdout()
			downloads := service.NewDownloadService(env.store, env.client.TransferClient(), env.cfg.DownloadConcurrency, env.logger)
			result := downloads.DownloadMany(cmd.Context(), names, saver, func(name string, err error) {
				if err == nil {
					fmt.Fprintf(out, "ok    %s\n", name)
				}
			})

			for _, f := range result.Failed {
				fmt.Fprintf(out, "error %s: %s\n", f.Name, f.Reason)
			}
			if !result.OK() {
				return fmt.Errorf("не скачано файлов: %d из %d", len(result.Failed), len(names))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "каталог для сохранения файлов")
	return cmd
}
