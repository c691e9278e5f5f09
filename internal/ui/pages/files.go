package pages

import (
	"context"
	"net/url"

	"github.com/a-h/templ"

	"github.com/bigkaa/pocketshare/internal/ui/i18n"
)

// groupHeading пишет заголовок секции группы файлов.
func groupHeading(ctx context.Context, h *htmlWriter, group, icon string) {
	h.raw(`  <div class="group" data-group="`)
	h.text(group)
	h.raw(`">` + "\n" + `    <h2><span class="icon icon-`)
	h.text(icon)
	h.raw(`"></span> `)
	h.text(t(ctx, "group."+group))
	h.raw("</h2>\n")
}

// Download — страница скачивания: таблицы файлов по группам с выбором.
func Download(data DownloadData) templ.Component {
	data.Title = "download.title"
	data.Active = "download"
	return withLayout(data.Layout, component("download", func(ctx context.Context, h *htmlWriter) {
		h.raw(`<section id="download" data-total="`)
		h.text(itoa(data.Total))
		h.raw(`" data-msg-done="`)
		h.text(t(ctx, "download.done"))
		h.raw(`" data-msg-partial="`)
		h.text(t(ctx, "download.partial"))
		h.raw(`">` + "\n" + `  <header class="toolbar">` + "\n    <h1>")
		h.text(t(ctx, "download.title"))
		h.raw("</h1>\n" + `    <label class="select-all">` + "\n" + `      <input type="checkbox" id="select-all"`)
		h.attrIf(data.AllSelected(), "checked")
		h.attrIf(data.Total == 0, "disabled")
		h.raw(">\n      ")
		h.text(t(ctx, "download.select_all"))
		h.raw("\n    </label>\n" + `    <span id="selected-count" data-template="`)
		h.text(t(ctx, "download.selected"))
		h.raw(`">`)
		h.text(i18n.Tf(ctx, "download.selected", data.Selected))
		h.raw("</span>\n" + `    <button type="button" id="download-selected" class="primary"`)
		h.attrIf(data.Selected == 0, "disabled")
		h.raw(">")
		h.text(t(ctx, "download.selected_button"))
		h.raw("</button>\n  </header>\n")

		switch {
		case data.Error != "":
			h.raw(`  <div class="notice error" role="alert"><strong>`)
			h.text(t(ctx, "download.load_error"))
			h.raw("</strong> ")
			h.text(data.Error)
			h.raw("</div>\n")
		case data.Total == 0:
			h.raw(`  <p class="muted">`)
			h.text(t(ctx, "download.empty"))
			h.raw("</p>\n")
		}

		for _, s := range data.Sections {
			if len(s.Files) == 0 {
				continue
			}
			groupHeading(ctx, h, s.Group, s.Icon)
			h.raw(`    <table class="files">` + "\n      <thead>\n        <tr>\n          <th></th>\n")
			for _, key := range []string{"download.col.name", "download.col.size", "download.col.type", "download.col.date"} {
				h.raw("          <th>")
				h.text(t(ctx, key))
				h.raw("</th>\n")
			}
			h.raw("          <th></th>\n        </tr>\n      </thead>\n      <tbody>\n")
			for _, f := range s.Files {
				fileRow(ctx, h, f)
			}
			h.raw("      </tbody>\n    </table>\n  </div>\n")
		}
		h.raw("</section>")
	}))
}

func fileRow(ctx context.Context, h *htmlWriter, f FileRow) {
	h.raw("        <tr>\n" + `          <td><input type="checkbox" class="file-select" value="`)
	h.text(f.ID)
	h.raw(`"`)
	h.attrIf(f.Selected, "checked")
	h.raw("></td>\n")
	for _, cell := range []string{f.Name, f.Size, f.MimeType, f.Date} {
		h.raw("          <td>")
		h.text(cell)
		h.raw("</td>\n")
	}
	h.raw(`          <td><a class="button" href="`)
	h.url(templ.URL("/api/v1/files/" + url.PathEscape(f.Name) + "/download"))
	h.raw(`">`)
	h.text(t(ctx, "download.one"))
	h.raw("</a></td>\n        </tr>\n")
}

// Upload — страница загрузки: выбор файлов и карточки подготовленных.
func Upload(data UploadData) templ.Component {
	data.Title = "upload.title"
	data.Active = "upload"
	return withLayout(data.Layout, component("upload", func(ctx context.Context, h *htmlWriter) {
		h.raw(`<section id="upload" data-msg-done="`)
		h.text(t(ctx, "upload.done"))
		h.raw(`" data-msg-failed="`)
		h.text(t(ctx, "upload.failed"))
		h.raw(`" data-busy="`)
		h.text(t(ctx, "upload.busy"))
		h.raw(`">` + "\n" + `  <header class="toolbar">` + "\n    <h1>")
		h.text(t(ctx, "upload.title"))
		h.raw("</h1>\n  </header>\n\n")
		h.raw(`  <label class="dropzone" id="dropzone">` + "\n")
		h.raw(`    <input type="file" id="file-input" name="files" multiple>` + "\n" + `    <span class="primary">`)
		h.text(t(ctx, "upload.pick"))
		h.raw("</span>\n" + `    <span class="muted">`)
		h.text(t(ctx, "upload.drop"))
		h.raw("</span>\n  </label>\n\n")

		if data.Total == 0 {
			h.raw(`  <p class="muted">`)
			h.text(t(ctx, "upload.empty"))
			h.raw("</p>\n")
		}

		for _, s := range data.Sections {
			if len(s.Files) == 0 {
				continue
			}
			groupHeading(ctx, h, s.Group, s.Icon)
			h.raw(`    <div class="masonry">` + "\n")
			for _, f := range s.Files {
				stagedCard(ctx, h, f)
			}
			h.raw("    </div>\n  </div>\n")
		}

		h.raw("\n" + `  <button type="button" id="upload-submit" class="primary"`)
		h.attrIf(data.Total == 0, "disabled")
		h.raw(">")
		h.text(t(ctx, "upload.submit"))
		h.raw("</button>\n</section>")
	}))
}

func stagedCard(ctx context.Context, h *htmlWriter, f StagedCard) {
	h.raw(`      <figure class="staged" data-id="`)
	h.text(f.ID)
	h.raw(`">` + "\n")
	if f.PreviewURL != "" {
		h.raw(`        <img src="`)
		h.url(templ.URL(f.PreviewURL))
		h.raw(`" alt="`)
		h.text(f.Name)
		h.raw(`" loading="lazy">` + "\n")
	}
	h.raw("        <figcaption>\n" + `          <span class="name">`)
	h.text(f.Name)
	h.raw("</span>\n" + `          <span class="muted">`)
	h.text(f.Size)
	h.raw("</span>\n" + `          <button type="button" class="remove-staged link" data-id="`)
	h.text(f.ID)
	h.raw(`">`)
	h.text(t(ctx, "upload.remove"))
	h.raw("</button>\n        </figcaption>\n      </figure>\n")
}
