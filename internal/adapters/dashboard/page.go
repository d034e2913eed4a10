package dashboard

import (
	"bytes"
	"html/template"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"datastory/internal/ingest"
	"datastory/internal/pipeline"
	"datastory/pkg/domain"
)

const (
	pageTitle    = "The Unseen Epidemic"
	pageSubtitle = "Fatal Accidental Overdoses in Allegheny County"
)

var funcMap = template.FuncMap{
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"since": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.Time(t)
	},
	"median": func(v *float64) string {
		if v == nil {
			return "–"
		}
		return humanize.Ftoa(*v)
	},
	"has":  func(list []string, s string) bool { return slices.Contains(list, s) },
	"join": strings.Join,
}

var pageTemplate = template.Must(template.New("page").Funcs(funcMap).Parse(tmplBase + tmplDashboard))

type chartPanel struct {
	Kind    string
	Heading string
	Lead    string
	Image   bool
}

var panels = []chartPanel{
	{
		Kind:    pipeline.KindYearly,
		Heading: "1) Fatal overdoses over time",
		Lead:    "Deaths per year, as a total or split by sex.",
		Image:   true,
	},
	{
		Kind:    pipeline.KindSubstances,
		Heading: "2) Substance composition over time",
		Lead:    "How the mix of substances found in toxicology has shifted, led by the rise of fentanyl.",
		Image:   true,
	},
	{
		Kind:    pipeline.KindCombinations,
		Heading: "3) Drug combinations",
		Lead:    "The most common sets of substances found together in a single death.",
	},
	{
		Kind:    pipeline.KindZIPs,
		Heading: "4) Geographic patterns",
		Lead:    "Deaths by incident ZIP code.",
	},
}

type pageData struct {
	Title        string
	Subtitle     string
	Meta         domain.Meta
	KPIs         pipeline.KPIs
	Default      domain.FilterSpec
	DefaultSexes []string
	Sexes        []domain.Sex
	ZIPs         []string
	Series       []string
	Notices      []string
	Panels       []chartPanel
	Dictionary   ingest.Dictionary
	Boundaries   bool
}

// handlePage renders the dashboard shell with the default selection. The
// charts themselves are drawn client side from the JSON API.
func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) int {
	table := h.Engine.Table()
	d, err := h.Engine.Render(r.Context(), table.DefaultFilter())
	if err != nil {
		return h.fail(w, routePage, err)
	}
	data := pageData{
		Title:      pageTitle,
		Subtitle:   pageSubtitle,
		Meta:       table.Meta(),
		KPIs:       d.KPIs,
		Default:    d.Spec,
		Sexes:      table.Sexes(),
		ZIPs:       table.ZIPs(),
		Series:     seriesOptions,
		Notices:    h.notices(d),
		Panels:     panels,
		Dictionary: h.Dictionary,
		Boundaries: h.Boundaries != nil,
	}
	for _, s := range d.Spec.Sexes {
		data.DefaultSexes = append(data.DefaultSexes, string(s))
	}
	var buf bytes.Buffer
	if err := pageTemplate.ExecuteTemplate(&buf, "base", data); err != nil {
		return h.fail(w, routePage, err)
	}
	return writeBody(w, "text/html; charset=utf-8", "", buf.Bytes())
}
