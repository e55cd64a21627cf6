package chart

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
)

var pageTemplate = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://cdn.jsdelivr.net/npm/vega@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-lite@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-embed@6"></script>
</head>
<body>
<div id="vis" style="width: 100%"></div>
<script type="text/javascript">
vegaEmbed("#vis", {{.Spec}}, {"actions": true});
</script>
</body>
</html>
`))

// Document merges the spec with inline data, the shape vega-embed consumes.
func Document(spec *Spec, records []map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode chart spec: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode chart spec: %w", err)
	}
	doc["$schema"] = SchemaURL
	doc["width"] = "container"
	doc["data"] = map[string]any{"values": records}
	return doc, nil
}

// RenderHTML writes a standalone page that draws the chart with vega-embed.
func RenderHTML(w io.Writer, title string, spec *Spec, records []map[string]any) error {
	doc, err := Document(spec, records)
	if err != nil {
		return err
	}
	return pageTemplate.Execute(w, struct {
		Title string
		Spec  map[string]any
	}{Title: title, Spec: doc})
}
