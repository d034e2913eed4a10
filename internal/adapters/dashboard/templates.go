package dashboard

const tmplBase = `
{{define "base"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Title}}</title>
<script src="https://cdn.plot.ly/plotly-2.35.2.min.js" charset="utf-8"></script>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:-apple-system,'Segoe UI',Roboto,sans-serif;background:#fafafa;color:#222;font-size:15px;line-height:1.55}
a{color:#1f77b4;text-decoration:none}
a:hover{text-decoration:underline}
header{background:#1d2330;color:#f5f5f5;padding:24px 32px}
header h1{font-size:28px;font-weight:700}
header p{color:#c8ccd4;margin-top:4px}
main{max-width:1180px;margin:0 auto;padding:24px 32px}
h2{font-size:20px;margin:28px 0 8px}
h3{font-size:16px;margin:18px 0 6px}
p.lead{color:#555;margin-bottom:8px}
.notice{background:#fff4e5;border-left:4px solid #f4a261;padding:10px 14px;margin:12px 0}
.error{background:#fdecea;border-left:4px solid #e63946;padding:10px 14px;margin:12px 0;display:none}
details{background:#fff;border:1px solid #e2e2e2;border-radius:6px;padding:12px 16px;margin:12px 0}
details summary{cursor:pointer;font-weight:600}
details ol,details ul{margin:8px 0 8px 24px}
form.filters{display:flex;gap:24px;flex-wrap:wrap;background:#fff;border:1px solid #e2e2e2;border-radius:6px;padding:14px 16px;margin:16px 0}
form.filters fieldset{border:none}
form.filters legend{font-size:12px;font-weight:600;text-transform:uppercase;letter-spacing:.05em;color:#666;margin-bottom:4px}
form.filters input[type=number]{width:90px;padding:3px 6px}
form.filters label{margin-right:10px;white-space:nowrap}
.cards{display:flex;gap:12px;flex-wrap:wrap;margin:16px 0}
.card{background:#fff;border:1px solid #e2e2e2;border-radius:6px;padding:12px 16px;min-width:170px}
.card .val{font-size:24px;font-weight:700}
.card .lbl{font-size:12px;color:#666;margin-top:2px}
.chart{background:#fff;border:1px solid #e2e2e2;border-radius:6px;min-height:440px}
.notes{font-size:13px;color:#666;margin-top:6px}
.downloads{font-size:13px;margin-top:4px}
.downloads a{margin-right:12px}
table{width:100%;border-collapse:collapse;font-size:13px;background:#fff}
th{text-align:left;padding:6px 10px;border-bottom:1px solid #ccc;color:#555}
td{padding:5px 10px;border-bottom:1px solid #eee;vertical-align:top}
footer{color:#777;font-size:13px;padding:24px 32px;text-align:center}
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
<p>{{.Subtitle}}</p>
</header>
<main>
{{template "content" .}}
</main>
<footer>
Source: <a href="{{.Meta.SourceURL}}">{{.Meta.Source}}</a> · loaded from {{.Meta.LoadedFrom}} {{since .Meta.LoadedAt}}
</footer>
</body>
</html>{{end}}
`

const tmplDashboard = `
{{define "content"}}
<div id="notices">
{{range .Notices}}<div class="notice">{{.}}</div>{{end}}
</div>
<div class="error" id="error"></div>

<details open>
<summary>Narrative</summary>
<h3>Introduction &amp; Context</h3>
<p>This data story looks at fatal accidental overdoses in Allegheny County, Pennsylvania, a crisis that has kept changing over the past two decades. Counts cannot convey the human loss, but the patterns in them show the scale of the epidemic, the substances behind it and where it is concentrated.</p>
<p>The county, home to Pittsburgh and its surrounding municipalities, has seen the substances involved in overdose deaths move from heroin and prescription opioids toward synthetic opioids such as fentanyl. That shift has made overdoses more lethal and prevention harder, which is why a local view matters when designing interventions.</p>
<h3>Data, Tools &amp; Approach</h3>
<p>The records come from the Western Pennsylvania Regional Data Center (WPRDC), compiled from the Allegheny County Medical Examiner's Office. Each case carries the year of death, sex and age, the incident ZIP code and up to ten toxicology results (<code>combined_od1</code> to <code>combined_od10</code>).</p>
<ul>
<li>Year, sex and ZIP code are standardized for consistency.</li>
<li>Toxicology results are reshaped into one row per substance.</li>
<li>Substances are grouped into Fentanyl, Heroin, Cocaine, Alcohol, Other Opioids and Other/Unknown.</li>
</ul>
<h3>What You will See</h3>
<ol>
{{range .Panels}}<li><strong>{{.Heading}}</strong>: {{.Lead}}</li>{{end}}
</ol>
</details>

<form class="filters" id="filters">
<fieldset>
<legend>Years</legend>
<input type="number" name="year_min" min="{{.Meta.YearMin}}" max="{{.Meta.YearMax}}" value="{{.Default.YearMin}}">
to
<input type="number" name="year_max" min="{{.Meta.YearMin}}" max="{{.Meta.YearMax}}" value="{{.Default.YearMax}}">
</fieldset>
<fieldset>
<legend>Sex</legend>
{{$sel := .DefaultSexes}}{{range .Sexes}}<label><input type="checkbox" name="sex" value="{{.}}"{{if has $sel (print .)}} checked{{end}}> {{.}}</label>{{end}}
</fieldset>
<fieldset>
<legend>ZIP (choose one)</legend>
<select name="zip">
<option value="ALL">ALL ZIPs</option>
{{range .ZIPs}}<option value="{{.}}">{{.}}</option>{{end}}
</select>
</fieldset>
</form>

<h2>Key Figures</h2>
<div class="cards">
<div class="card"><div class="val" id="kpi-records">{{.KPIs.RecordsLabel}}</div><div class="lbl">Records (filtered)</div></div>
<div class="card"><div class="val" id="kpi-years">{{.KPIs.YearSpanLabel}}</div><div class="lbl">Year span</div></div>
<div class="card"><div class="val" id="kpi-sex">{{.KPIs.SexLabel}}</div><div class="lbl">Sex</div></div>
<div class="card"><div class="val" id="kpi-zip">{{.KPIs.ZIPLabel}}</div><div class="lbl">ZIP</div></div>
<div class="card"><div class="val" id="kpi-age">{{median .KPIs.MedianAge}}</div><div class="lbl">Median age</div></div>
</div>
<p class="lead" id="kpi-description">{{.KPIs.Description}}</p>

{{$series := .Series}}
{{range .Panels}}
<h2>{{.Heading}}</h2>
<p class="lead">{{.Lead}}</p>
{{if eq .Kind "yearly"}}<div class="series">{{range $series}}<label><input type="checkbox" name="series" value="{{.}}"{{if ne . "Unknown"}} checked{{end}}> {{.}}</label> {{end}}</div>{{end}}
<div class="chart" id="chart-{{.Kind}}"></div>
<div class="notes" id="notes-{{.Kind}}"></div>
<div class="downloads">
<a data-kind="{{.Kind}}" data-format="csv" href="/api/v1/charts/{{.Kind}}?format=csv">Download CSV</a>
<a data-kind="{{.Kind}}" data-format="xlsx" href="/api/v1/charts/{{.Kind}}?format=xlsx">Download Excel</a>
{{if .Image}}<a data-kind="{{.Kind}}" data-format="png" href="/api/v1/charts/{{.Kind}}.png">Download PNG</a>{{end}}
</div>
{{end}}

<details>
<summary>About the data</summary>
<p>{{comma .Meta.Rows}} records loaded ({{.Meta.YearMin}}–{{.Meta.YearMax}}); {{comma .Meta.Dropped}} rows without a usable year were dropped and {{comma .Meta.OutOfCoverage}} fall before the covered period.</p>
{{if .Dictionary.Columns}}
<table>
<tr>{{range .Dictionary.Columns}}<th>{{.}}</th>{{end}}</tr>
{{$cols := .Dictionary.Columns}}{{range .Dictionary.Rows}}{{$row := .}}<tr>{{range $cols}}<td>{{index $row .}}</td>{{end}}</tr>{{end}}
</table>
{{else}}
<p>No data dictionary available.</p>
{{end}}
</details>

<script>
const defaults = {{.Default}};
const hasBoundaries = {{.Boundaries}};
const form = document.getElementById('filters');
let geo = null;

function selected(name) {
  return Array.from(document.querySelectorAll('input[name=' + name + ']:checked')).map(el => el.value);
}

function params() {
  const p = new URLSearchParams();
  p.set('year_min', form.year_min.value || defaults.year_min);
  p.set('year_max', form.year_max.value || defaults.year_max);
  selected('sex').forEach(v => p.append('sex', v));
  p.set('zip', form.zip.value);
  selected('series').forEach(v => p.append('series', v));
  return p;
}

function traces(cfg) {
  const xs = s => s.data.map(d => d.label);
  const ys = s => s.data.map(d => d.value);
  switch (cfg.chartType) {
  case 'line':
    return cfg.series.map(s => ({type: 'scatter', mode: 'lines+markers', name: s.name, x: xs(s), y: ys(s), line: {color: s.color}}));
  case 'stacked_area':
    return cfg.series.map(s => ({type: 'scatter', mode: 'lines', stackgroup: 'one', name: s.name, x: xs(s), y: ys(s), line: {color: s.color}}));
  case 'treemap': {
    const s = cfg.series[0] || {data: []};
    return [{type: 'treemap', labels: xs(s), parents: s.data.map(() => ''), values: ys(s), textinfo: 'label+value+percent root'}];
  }
  case 'choropleth': {
    const s = cfg.series[0] || {data: []};
    return [{type: 'choroplethmapbox', geojson: geo, featureidkey: cfg.map.featureIdKey, locations: xs(s), z: ys(s),
      colorscale: 'Reds', marker: {opacity: 0.7}, colorbar: {title: {text: 'Deaths'}}}];
  }
  }
  return [];
}

function layout(cfg) {
  const l = {title: {text: cfg.title}, showlegend: cfg.showLegend, margin: {t: 48, r: 16, b: 48, l: 56}};
  if (cfg.xAxis) l.xaxis = {title: {text: cfg.xAxis}, dtick: 1};
  if (cfg.yAxis) l.yaxis = {title: {text: cfg.yAxis}, rangemode: 'tozero'};
  if (cfg.map) {
    l.mapbox = {style: cfg.map.style, center: {lat: cfg.map.centerLat, lon: cfg.map.centerLon}, zoom: cfg.map.zoom};
  }
  return l;
}

function draw(kind, cfg, query) {
  const el = document.getElementById('chart-' + kind);
  const notes = (cfg.notes || []).slice();
  if (cfg.chartType === 'choropleth' && !geo) {
    notes.unshift('ZIP boundaries are unavailable, so the map cannot be drawn.');
    Plotly.purge(el);
  } else {
    Plotly.react(el, traces(cfg), layout(cfg), {responsive: true, displaylogo: false});
  }
  document.getElementById('notes-' + kind).textContent = notes.join(' ');
  document.querySelectorAll('a[data-kind=' + kind + ']').forEach(a => {
    const fmt = a.dataset.format;
    a.href = fmt === 'png'
      ? '/api/v1/charts/' + kind + '.png?' + query
      : '/api/v1/charts/' + kind + '?format=' + fmt + '&' + query;
  });
}

function render(body, query) {
  const box = document.getElementById('notices');
  box.replaceChildren(...(body.notices || []).map(n => {
    const div = document.createElement('div');
    div.className = 'notice';
    div.textContent = n;
    return div;
  }));
  const k = body.kpis;
  document.getElementById('kpi-records').textContent = k.records_label;
  document.getElementById('kpi-years').textContent = k.year_span_label;
  document.getElementById('kpi-sex').textContent = k.sex_label;
  document.getElementById('kpi-zip').textContent = k.zip_label;
  document.getElementById('kpi-age').textContent = k.median_age == null ? '–' : String(Math.round(k.median_age * 10) / 10);
  document.getElementById('kpi-description').textContent = k.description;
  Object.keys(body.charts).forEach(kind => draw(kind, body.charts[kind], query));
}

function refresh() {
  const query = params().toString();
  const err = document.getElementById('error');
  fetch('/api/v1/dashboard?' + query)
    .then(res => res.json().then(body => {
      if (!res.ok) throw new Error(body.error || res.statusText);
      return body;
    }))
    .then(body => { err.style.display = 'none'; render(body, query); })
    .catch(e => { err.textContent = e.message; err.style.display = 'block'; });
}

document.querySelectorAll('form.filters input, form.filters select, input[name=series]').forEach(el => el.addEventListener('change', refresh));

(hasBoundaries ? fetch('/api/v1/boundaries').then(res => res.ok ? res.json() : null).catch(() => null) : Promise.resolve(null))
  .then(g => { geo = g; refresh(); });
</script>
{{end}}
`
