package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

//go:embed fallback.yaml
var fallbackYAML []byte

type fallbackDocument struct {
	Banners  []map[string]any `yaml:"banners"`
	Features []map[string]any `yaml:"features"`
	Groups   []map[string]any `yaml:"groups"`
}

// fallback serves the bundled catalog through the same parsers as the API.
func (c *Client) fallback() (Page, error) {
	var doc fallbackDocument
	if err := yaml.Unmarshal(fallbackYAML, &doc); err != nil {
		return Page{}, fmt.Errorf("catalog: parse fallback: %w", err)
	}
	banners, err := asJSON(doc.Banners)
	if err != nil {
		return Page{}, err
	}
	features, err := asJSON(doc.Features)
	if err != nil {
		return Page{}, err
	}
	groups, err := asJSON(doc.Groups)
	if err != nil {
		return Page{}, err
	}
	page := c.assemble(banners, features, groups)
	page.Source = SourceFallback
	return page, nil
}

func asJSON(v any) (gjson.Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("catalog: encode fallback: %w", err)
	}
	return gjson.ParseBytes(data), nil
}
