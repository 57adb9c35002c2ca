package cas

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/schl3ck/cas-authentication-middleware/internal/adapters/driven/xmlmap"
	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
)

// decodeAttributes builds the attribute mapping from an attributes element.
// The scalar-vs-list shape the server used is preserved per key: a tag that
// appears once stays a scalar, repeated tags become a list.
//
// Two wire styles are normalized into one mapping:
//
//	<cas:attributes><cas:email>a@x</cas:email></cas:attributes>
//	<cas:attributes><cas:attribute name="email" value="a@x"/></cas:attributes>
func decodeAttributes(attrs *xmlmap.Node) domain.Attributes {
	out := make(domain.Attributes)

	for _, child := range attrs.Children {
		name := child.Name
		value := child.Text

		if name == "attribute" {
			if n, ok := child.Attr["name"]; ok && n != "" {
				name = n
				if v, ok := child.Attr["value"]; ok {
					value = v
				}
			}
		}
		if name == "" {
			continue
		}

		addAttribute(out, name, value)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// addAttribute stores a single value, expanding RubyCAS-style YAML payloads.
// RubyCAS serializes non-string values as YAML documents starting with "---".
func addAttribute(attrs domain.Attributes, name, value string) {
	if !strings.HasPrefix(value, "---") {
		attrs.Add(name, value)
		return
	}

	if value == "--- true" {
		attrs.Add(name, "true")
		return
	}
	if value == "--- false" {
		attrs.Add(name, "false")
		return
	}

	var decoded any
	if err := yaml.Unmarshal([]byte(value), &decoded); err != nil {
		attrs.Add(name, value)
		return
	}

	switch v := decoded.(type) {
	case string:
		attrs.Add(name, v)
	case []any:
		var list []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				list = append(list, s)
			}
		}
		attrs.AddList(name, list)
	default:
		attrs.Add(name, value)
	}
}
