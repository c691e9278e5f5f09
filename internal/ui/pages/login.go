package pages

import (
	"context"
	"net/url"

	"github.com/a-h/templ"
)

// Login — страница входа (без меню).
func Login(data LoginData) templ.Component {
	return component("login", func(ctx context.Context, h *htmlWriter) {
		head(ctx, h, t(ctx, "login.submit"))
		h.raw(`<body class="login-page">` + "\n" + `<div class="login-box">` + "\n  <h1>")
		h.text(t(ctx, "login.title"))
		h.raw("</h1>\n")
		if data.Error != "" {
			h.raw(`  <div class="notice error" role="alert"><strong>`)
			h.text(t(ctx, "login.error"))
			h.raw("</strong> ")
			h.text(t(ctx, data.Error))
			h.raw("</div>\n")
		}

		action := "/login"
		if data.Redirect != "" {
			action += "?redirect=" + url.QueryEscape(data.Redirect)
		}
		h.raw(`  <form method="post" action="`)
		h.url(templ.URL(action))
		h.raw(`" data-busy="`)
		h.text(t(ctx, "login.busy"))
		h.raw(`">` + "\n" + `    <label for="email">`)
		h.text(t(ctx, "login.email"))
		h.raw("</label>\n" + `    <input id="email" type="email" name="email" placeholder="ex@ps.com" value="`)
		h.text(data.Email)
		h.raw(`" required>` + "\n" + `    <label for="password">`)
		h.text(t(ctx, "login.password"))
		h.raw("</label>\n" + `    <input id="password" type="password" name="password" placeholder="********" required>` + "\n")
		h.raw(`    <button type="submit" class="primary">`)
		h.text(t(ctx, "login.submit"))
		h.raw("</button>\n  </form>\n</div>\n</body>\n</html>\n")
	})
}
