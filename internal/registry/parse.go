package registry

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var iniLoadOptions = ini.LoadOptions{
	InsensitiveKeys:            true,
	AllowNonUniqueSections:     true,
	AllowPythonMultilineValues: true,
	IgnoreInlineComment:        true,
	IgnoreContinuation:         true,
	PreserveSurroundedQuote:    true,
}

// parseINI reads ConfigParser-style sections. Keys in [DEFAULT] apply to
// every section that does not set them.
func parseINI(data []byte) ([]Definition, error) {
	f, err := ini.LoadSources(iniLoadOptions, data)
	if err != nil {
		return nil, err
	}

	// An explicit [DEFAULT] header may add a second default section next to
	// the implicit one.
	var defaults []*ini.Key
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			defaults = append(defaults, sec.Keys()...)
		}
	}

	var defs []Definition
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		for _, k := range defaults {
			if !sec.HasKey(k.Name()) {
				if _, err := sec.NewKey(k.Name(), k.Value()); err != nil {
					return nil, fmt.Errorf("section %q: %w", sec.Name(), err)
				}
			}
		}

		var def Definition
		if err := sec.MapTo(&def); err != nil {
			return nil, fmt.Errorf("section %q: %w", sec.Name(), err)
		}
		def.Name = strings.TrimSpace(sec.Name())
		defs = append(defs, def)
	}
	return defs, nil
}

// parseYAML reads a mapping of section name to keys. Document order is
// kept and repeated names are passed through so Lookup can report them.
func parseYAML(data []byte) ([]Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping of package names")
	}

	var defs []Definition
	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode, valueNode := doc.Content[i], doc.Content[i+1]

		var def Definition
		if err := valueNode.Decode(&def); err != nil {
			return nil, fmt.Errorf("section %q (line %d): %w", keyNode.Value, keyNode.Line, err)
		}
		def.Name = strings.TrimSpace(keyNode.Value)
		defs = append(defs, def)
	}
	return defs, nil
}
