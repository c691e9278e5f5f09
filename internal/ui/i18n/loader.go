// loader.go — встроенные каталоги переводов и их загрузка.
package i18n

import (
	"embed"
	"fmt"
	"log/slog"
)

// LocaleFS — JSON-каталоги переводов.
//
//go:embed locales/*.json
var LocaleFS embed.FS

// LoadFromEmbedFS загружает locales/en.json и locales/ru.json.
func LoadFromEmbedFS(bundle *Bundle, logger *slog.Logger) error {
	langs := []string{"en", "ru"}

	for _, lang := range langs {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := LocaleFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("i18n: чтение %s: %w", path, err)
		}
		if err := bundle.LoadMessages(lang, data); err != nil {
			return err
		}
	}

	logger.Info("i18n каталоги загружены", slog.Int("languages", len(langs)))
	return nil
}
