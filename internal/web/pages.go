// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/samber/oops"
)

//go:embed templates/*.html
var templatesFS embed.FS

// pages holds the parsed page templates.
type pages struct {
	login    *template.Template
	register *template.Template
	home     *template.Template
}

// loadPages parses the embedded page templates.
func loadPages() (*pages, error) {
	parse := func(name string) (*template.Template, error) {
		t, err := template.ParseFS(templatesFS, "templates/"+name)
		if err != nil {
			return nil, oops.Code("TEMPLATE_PARSE_FAILED").With("template", name).Wrap(err)
		}
		return t, nil
	}

	login, err := parse("login.html")
	if err != nil {
		return nil, err
	}
	register, err := parse("register.html")
	if err != nil {
		return nil, err
	}
	home, err := parse("home.html")
	if err != nil {
		return nil, err
	}

	return &pages{login: login, register: register, home: home}, nil
}

// render executes a template into the response. The template set is
// parsed at startup, so execution errors indicate bad data, not bad
// markup; the response status is already committed by then.
func (p *pages) render(w http.ResponseWriter, t *template.Template, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		return oops.Code("TEMPLATE_RENDER_FAILED").Wrap(err)
	}
	return nil
}
