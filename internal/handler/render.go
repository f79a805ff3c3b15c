// Package handler contains the HTTP handlers for payapp.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path params, form fields, cookies)
// 2. Call the service layer
// 3. Write the HTTP response (HTML page, redirect or JSON)
//
// Handlers hold no business rules. They translate between HTTP and the
// services, and map apperror kinds to status codes (see response.go).
package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sakif/payapp/internal/auth"
)

// pageNames lists every page template under templates/. Each one is parsed
// together with base.html and fills its {{template "content" .}} slot.
var pageNames = []string{
	"home",
	"signup",
	"login",
	"dashboard",
	"my_profile",
	"creator_profile",
	"settings",
	"find",
	"error",
}

// PageData is what every page template receives.
//
// Title, LoggedIn and Flash feed base.html. Form and Errors re-fill a form
// after a failed POST. Data carries the page-specific payload.
type PageData struct {
	Title    string
	LoggedIn bool
	Flash    *Flash
	Form     map[string]string
	Errors   map[string]string
	Data     any
}

// Renderer holds parsed templates so we don't re-parse them on every request.
//
// TEMPLATE COMPOSITION:
// base.html defines the page shell with a {{template "content" .}}
// placeholder. Each page file defines "content". Every page gets its own
// clone of base, otherwise the pages' "content" definitions would overwrite
// each other in one shared template set.
type Renderer struct {
	pages    map[string]*template.Template
	versions map[string]string
	logger   *slog.Logger
}

// NewRenderer parses the templates in fsys (templates/*.html) and hashes the
// assets under static/ for cache busting. avatarURL turns an avatar key into
// a browser URL.
func NewRenderer(fsys fs.FS, avatarURL func(string) string, logger *slog.Logger) (*Renderer, error) {
	versions, err := hashAssets(fsys, "static")
	if err != nil {
		return nil, err
	}

	rr := &Renderer{
		pages:    make(map[string]*template.Template, len(pageNames)),
		versions: versions,
		logger:   logger,
	}

	funcs := template.FuncMap{
		"static":    rr.staticURL,
		"avatarURL": avatarURL,
		"initial":   initial,
	}

	base, err := template.New("base.html").Funcs(funcs).ParseFS(fsys, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("handler: parsing base template: %w", err)
	}

	for _, name := range pageNames {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("handler: cloning base template: %w", err)
		}
		if _, err := t.ParseFS(fsys, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("handler: parsing %s template: %w", name, err)
		}
		rr.pages[name] = t
	}

	return rr, nil
}

// Render executes page into a buffer first, so a template error becomes a
// clean 500 instead of half a page followed by an error message.
func (rr *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	t, ok := rr.pages[page]
	if !ok {
		rr.logger.Error("unknown page template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	_, data.LoggedIn = auth.UserIDFromContext(r.Context())
	if data.Flash == nil {
		data.Flash = popFlash(w, r)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		rr.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

type errorPage struct {
	Status  int
	Message string
}

// RenderError shows err on the error page with the status writeError would use.
func (rr *Renderer) RenderError(w http.ResponseWriter, r *http.Request, err error) {
	logIfInternal(rr.logger, r, err)
	status, _ := statusFor(err)
	rr.Render(w, r, status, "error", PageData{
		Title: http.StatusText(status),
		Data:  errorPage{Status: status, Message: publicMessage(err)},
	})
}

// NotFound renders the error page for unknown routes.
func (rr *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rr.Render(w, r, http.StatusNotFound, "error", PageData{
		Title: "Not Found",
		Data:  errorPage{Status: http.StatusNotFound, Message: "Page not found."},
	})
}

// staticURL is the "static" template func: "css/style.css" becomes
// "/static/css/style.css?v=<hash>". The hash changes whenever the file does,
// so browsers can cache assets forever and still pick up new versions.
func (rr *Renderer) staticURL(name string) string {
	u := "/static/" + strings.TrimLeft(name, "/")
	if v, ok := rr.versions[name]; ok {
		u += "?v=" + v
	}
	return u
}

// StaticHandler serves the static/ subtree of fsys. Versioned URLs get a
// long cache lifetime.
func StaticHandler(fsys fs.FS) (http.Handler, error) {
	sub, err := fs.Sub(fsys, "static")
	if err != nil {
		return nil, fmt.Errorf("handler: static subtree: %w", err)
	}
	files := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") != "" {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		}
		files.ServeHTTP(w, r)
	}), nil
}

func hashAssets(fsys fs.FS, root string) (map[string]string, error) {
	versions := make(map[string]string)
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		versions[strings.TrimPrefix(p, root+"/")] = hex.EncodeToString(sum[:])[:12]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("handler: hashing assets under %s: %w", root, err)
	}
	return versions, nil
}

func initial(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}
