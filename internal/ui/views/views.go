// Package views renders the console pages and the fragments patched over SSE.
package views

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/a-h/templ"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/present"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/ui/resources"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("views").Funcs(template.FuncMap{
	"static": resources.StaticPath,
}).ParseFS(templateFS, "templates/*.html"))

// BannerKind selects the banner style.
type BannerKind string

const (
	BannerSuccess BannerKind = "success"
	BannerError   BannerKind = "error"
	BannerWarning BannerKind = "warning"
	BannerInfo    BannerKind = "info"
)

// Banner is a one-line status message.
type Banner struct {
	Kind BannerKind
	Text string
}

// SchemaTable is one node of the schema tree.
type SchemaTable struct {
	Name    string
	Columns []string
}

// AppData is everything the #app fragment shows.
type AppData struct {
	State        string
	Provider     string
	LLMValidated bool
	DBValidated  bool
	Unlocked     bool
	Activity     string
	Banners      []Banner

	Tables    []SchemaTable
	SchemaRaw string

	HasResult     bool
	LastSQL       string
	ResultMessage string
	ResultTable   template.HTML
	ResultText    string
}

// PageData is the full page.
type PageData struct {
	Title       string
	DatastarSrc string
	// Signals is the initial data-signals JSON.
	Signals string
	App     AppData
}

// NewAppData builds the fragment data from a session snapshot.
func NewAppData(v session.View, provider string) AppData {
	d := AppData{
		State:        v.State.String(),
		Provider:     provider,
		LLMValidated: v.LLMValidated,
		DBValidated:  v.DBValidated,
		Unlocked:     v.State.Unlocked(),
		LastSQL:      v.LastSQL,
	}
	for _, m := range v.Messages {
		d.Banners = append(d.Banners, Banner{Kind: BannerKind(m.Level), Text: m.Text})
	}
	if m := v.Schema; m != nil {
		if m.IsRaw() {
			d.SchemaRaw = m.Raw
		}
		for _, name := range m.Tables() {
			d.Tables = append(d.Tables, SchemaTable{Name: name, Columns: m.Columns(name)})
		}
	}
	if r := v.Result; r != nil {
		d.HasResult = true
		d.ResultMessage = r.Message()
		switch r.Kind {
		case present.KindTable:
			// go-pretty escapes cell text.
			d.ResultTable = template.HTML(r.HTML()) //nolint:gosec
		case present.KindText:
			d.ResultText = r.Raw
		}
	}
	return d
}

// Page renders the full console page.
func Page(d PageData) templ.Component { return render("page", d) }

// App renders the #app fragment.
func App(d AppData) templ.Component { return render("app", d) }

// Activity renders the #activity indicator. Empty text clears it.
func Activity(text string) templ.Component { return render("activity", text) }

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return templates.ExecuteTemplate(w, name, data)
	})
}
