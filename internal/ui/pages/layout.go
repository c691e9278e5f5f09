package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/bigkaa/pocketshare/internal/ui/i18n"
)

// withLayout оборачивает содержимое страницы каркасом с меню.
func withLayout(l Layout, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return layout(l).Render(templ.WithChildren(ctx, body), w)
	})
}

// layout — каркас страницы; содержимое берётся из templ.GetChildren.
func layout(l Layout) templ.Component {
	return component("layout", func(ctx context.Context, h *htmlWriter) {
		head(ctx, h, t(ctx, l.Title))
		h.raw(`<body data-events="/events/auth">` + "\n")
		h.raw(`<nav class="navbar">` + "\n" + `  <a class="brand" href="/">`)
		h.text(t(ctx, "app.name"))
		h.raw("</a>\n" + `  <ul class="menu">` + "\n")
		menuItem(ctx, h, l.Active, "home", "/", "nav.home")
		menuItem(ctx, h, l.Active, "upload", "/upload", "nav.upload")
		menuItem(ctx, h, l.Active, "download", "/download", "nav.download")
		h.raw("  </ul>\n" + `  <div class="user">` + "\n")
		h.raw(`    <form method="post" action="/set-language" class="inline">` + "\n")
		h.raw(`      <input type="hidden" name="lang" value="`)
		h.text(otherLang(ctx))
		h.raw(`">` + "\n" + `      <button type="submit" class="link">`)
		h.text(t(ctx, "nav.language"))
		h.raw("</button>\n    </form>\n" + `    <span class="email">`)
		h.text(l.Email)
		h.raw("</span>\n" + `    <form method="post" action="/logout" class="inline">` + "\n      <button type=\"submit\">")
		h.text(t(ctx, "nav.logout"))
		h.raw("</button>\n    </form>\n  </div>\n</nav>\n")
		h.raw(`<div id="toast" class="toast" hidden></div>` + "\n" + `<main class="main-container">` + "\n")
		h.render(templ.ClearChildren(ctx), templ.GetChildren(ctx))
		h.raw("\n</main>\n</body>\n</html>\n")
	})
}

// head пишет doctype и <head> с заголовком title.
func head(ctx context.Context, h *htmlWriter, title string) {
	h.raw("<!DOCTYPE html>\n" + `<html lang="`)
	h.text(i18n.LangFromContext(ctx))
	h.raw(`">` + "\n<head>\n" + `<meta charset="utf-8">` + "\n")
	h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">` + "\n<title>")
	h.text(title + " · " + t(ctx, "app.name"))
	h.raw("</title>\n" + `<link rel="stylesheet" href="/static/css/app.css">` + "\n")
	h.raw(`<script src="/static/js/app.js" defer></script>` + "\n</head>\n")
}

func menuItem(ctx context.Context, h *htmlWriter, active, item, href, key string) {
	h.raw("    <li")
	h.attrIf(active == item, `class="active"`)
	h.raw(`><a href="`)
	h.url(templ.URL(href))
	h.raw(`">`)
	h.text(t(ctx, key))
	h.raw("</a></li>\n")
}
