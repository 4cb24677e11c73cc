package detection

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Labels maps detector class ids to class names
type Labels map[int]string

// DefaultLabels covers the single-class survivor model; COCO models also use id 0 for person
func DefaultLabels() Labels {
	return Labels{0: "person"}
}

// Name resolves a class id, falling back to a synthetic name
func (l Labels) Name(id int) string {
	if n, ok := l[id]; ok {
		return n
	}
	return fmt.Sprintf("class_%d", id)
}

// LoadLabels reads an Ultralytics-style dataset file with a names: list or map
func LoadLabels(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return ParseLabels(data)
}

// ParseLabels parses the names: key of a dataset YAML document
func ParseLabels(data []byte) (Labels, error) {
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}

	labels := make(Labels)
	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := doc.Names.Decode(&list); err != nil {
			return nil, fmt.Errorf("parse label list: %w", err)
		}
		for i, name := range list {
			labels[i] = name
		}
	case yaml.MappingNode:
		var m map[int]string
		if err := doc.Names.Decode(&m); err != nil {
			return nil, fmt.Errorf("parse label map: %w", err)
		}
		for id, name := range m {
			labels[id] = name
		}
	default:
		return nil, fmt.Errorf("parse labels: missing names")
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("parse labels: names is empty")
	}
	return labels, nil
}
