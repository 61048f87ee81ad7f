package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strconv"
	"strings"
)

// Page template names. Each is parsed together with base.html and
// partials.html, the way a layout wraps a page.
const (
	PageHome      = "home"
	PageLogin     = "login"
	PageAuthError = "auth_error"
	PageProfile   = "profile"
	PageDashboard = "dashboard"
	PageNotFound  = "not_found"
	PageError     = "error"
)

// FragmentPick is the add-dialog list, rendered without the layout.
const FragmentPick = "pick_list"

var pageNames = []string{
	PageHome, PageLogin, PageAuthError, PageProfile, PageDashboard, PageNotFound, PageError,
}

// Renderer holds the parsed templates so nothing is parsed per request.
type Renderer struct {
	pages    map[string]*template.Template
	partials *template.Template
}

// NewRenderer parses templates/*.html from fsys.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	partials, err := template.New("partials").Funcs(Funcs()).ParseFS(fsys, "templates/base.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("view: parsing layout: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames)), partials: partials}
	for _, name := range pageNames {
		t, err := partials.Clone()
		if err != nil {
			return nil, fmt.Errorf("view: cloning layout for %s: %w", name, err)
		}
		if _, err := t.ParseFS(fsys, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("view: parsing %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Page renders a full page. The output is buffered so a template error
// never leaves a half-written response.
func (r *Renderer) Page(w io.Writer, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("view: unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("view: rendering %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Fragment renders one named partial without the layout.
func (r *Renderer) Fragment(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.partials.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("view: rendering %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Funcs are the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"stars":   FormatStars,
		"initial": Initial,
	}
}

// FormatStars abbreviates a star count: 950, 1.2k, 15k.
func FormatStars(n int) string {
	switch {
	case n < 1000:
		return strconv.Itoa(n)
	case n < 10000:
		s := strconv.FormatFloat(float64(n)/1000, 'f', 1, 64)
		return strings.TrimSuffix(s, ".0") + "k"
	default:
		return strconv.Itoa(n/1000) + "k"
	}
}

// Initial is the avatar placeholder letter.
func Initial(name string) string {
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return "?"
}
