package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RewriteSlideshowDuration persists a new slideshow_duration_seconds value
// into the YAML file at configPath without disturbing comments or key
// ordering elsewhere in the file.
//
// Viper (used for the read path) decodes through a plain map and cannot
// round-trip comments, so this walks the yaml.v3 Node tree instead, which
// keeps each scalar's head/line comments attached. The write is crash-safe:
// the new content is written to a sibling ".new" file, the original is
// renamed to ".old", the ".new" file is renamed into place, and only then is
// the ".old" file removed. A process death at any point before the final
// rename leaves either the original file or the fully-written replacement on
// disk, never a half-written one.
func RewriteSlideshowDuration(configPath string, seconds float64) error {
	original, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("reading config %q: %w", configPath, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(original, &root); err != nil {
		return fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	if err := setMappingFloatValue(&root, "slideshow_duration_seconds", seconds); err != nil {
		return fmt.Errorf("rewriting slideshow_duration_seconds in %q: %w", configPath, err)
	}

	rewritten, err := yaml.Marshal(&root)
	if err != nil {
		return fmt.Errorf("re-encoding config %q: %w", configPath, err)
	}

	newPath := configPath + ".new"
	oldPath := configPath + ".old"

	if err := os.WriteFile(newPath, rewritten, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", newPath, err)
	}

	if err := os.Rename(configPath, oldPath); err != nil {
		os.Remove(newPath)
		return fmt.Errorf("renaming %q to %q: %w", configPath, oldPath, err)
	}

	if err := os.Rename(newPath, configPath); err != nil {
		return fmt.Errorf("renaming %q to %q: %w", newPath, configPath, err)
	}

	if err := os.Remove(oldPath); err != nil {
		return fmt.Errorf("removing stale %q: %w", oldPath, err)
	}

	return nil
}

// setMappingFloatValue finds key in the document's top-level mapping and
// sets its scalar value to v, preserving the key node (and its comments)
// untouched. It creates the key at the end of the mapping if absent.
func setMappingFloatValue(doc *yaml.Node, key string, v float64) error {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fmt.Errorf("unexpected document shape")
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return fmt.Errorf("top-level YAML node is not a mapping")
	}

	value := formatDuration(v)
	// Tag the scalar with the type its text resolves to, so the encoder
	// writes it plain instead of with an explicit "!!float" tag.
	tag := "!!float"
	if v == float64(int64(v)) {
		tag = "!!int"
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		if keyNode.Value == key {
			valueNode := mapping.Content[i+1]
			valueNode.Value = value
			valueNode.Tag = tag
			valueNode.Style = 0
			return nil
		}
	}

	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
	)
	return nil
}

func formatDuration(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
