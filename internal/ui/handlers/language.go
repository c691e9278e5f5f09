// language.go — обработчик переключения языка страниц.
package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/bigkaa/pocketshare/internal/ui/i18n"
)

// HandleSetLanguage обрабатывает POST /set-language.
// Устанавливает cookie "lang" и возвращает на страницу из Referer.
func HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")
	if !i18n.IsSupported(lang) {
		lang = i18n.DefaultLang
	}

	http.SetCookie(w, &http.Cookie{
		Name:     i18n.LangCookieName,
		Value:    lang,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
	})

	// Возврат только на страницы этого же хоста
	target := "/"
	if ref, err := url.Parse(r.Header.Get("Referer")); err == nil && ref.Path != "" &&
		(ref.Host == "" || ref.Host == r.Host) {
		target = SafeRedirect(ref.RequestURI())
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}
