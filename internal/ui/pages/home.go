package pages

import (
	"context"

	"github.com/a-h/templ"

	"github.com/bigkaa/pocketshare/internal/ui/i18n"
)

// Home — главная страница со ссылками на загрузку и скачивание.
func Home(data HomeData) templ.Component {
	data.Title = "home.title"
	data.Active = "home"
	return withLayout(data.Layout, component("home", func(ctx context.Context, h *htmlWriter) {
		h.raw(`<section class="cards">` + "\n" + `  <a class="card" href="/upload">` + "\n    <h2>")
		h.text(t(ctx, "nav.upload"))
		h.raw("</h2>\n    <p>")
		h.text(t(ctx, "home.upload_hint"))
		h.raw("</p>\n")
		if data.StagedCount > 0 {
			h.raw(`    <p class="muted">`)
			h.text(i18n.Tf(ctx, "home.staged_count", data.StagedCount))
			h.raw("</p>\n")
		}
		h.raw("  </a>\n" + `  <a class="card" href="/download">` + "\n    <h2>")
		h.text(t(ctx, "nav.download"))
		h.raw("</h2>\n    <p>")
		h.text(t(ctx, "home.download_hint"))
		h.raw("</p>\n  </a>\n</section>")
	}))
}
