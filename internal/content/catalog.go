package content

import (
	_ "embed"
	"fmt"
	"math/rand/v2"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// DefaultTopic is used when a theory lesson is requested without a topic or
// for a topic the catalog does not know.
const DefaultTopic = "rhythm"

// Exercise is one clapping exercise.
type Exercise struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Style        string    `json:"style" yaml:"style"`
	Level        int       `json:"level" yaml:"level"`
	BPM          int       `json:"bpm" yaml:"bpm"`
	Pattern      []float64 `json:"pattern" yaml:"pattern"`
	Instructions string    `json:"instructions" yaml:"instructions"`
}

// Catalog is the static educational content served to the coach.
type Catalog struct {
	Exercises []Exercise        `yaml:"exercises"`
	Facts     []string          `yaml:"facts"`
	Lessons   map[string]string `yaml:"lessons"`
}

// LoadCatalog parses the built-in catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Facts) == 0 {
		return nil, fmt.Errorf("catalog has no facts")
	}
	if _, ok := c.Lessons[DefaultTopic]; !ok {
		return nil, fmt.Errorf("catalog has no %q lesson", DefaultTopic)
	}
	return &c, nil
}

// ExercisesFor returns exercises at or below level, optionally restricted to style.
// A level below 1 is treated as 1.
func (c *Catalog) ExercisesFor(level int, style string) []Exercise {
	if level < 1 {
		level = 1
	}
	out := []Exercise{}
	for _, ex := range c.Exercises {
		if ex.Level > level {
			continue
		}
		if style != "" && ex.Style != style {
			continue
		}
		out = append(out, ex)
	}
	return out
}

// RandomFact picks one fact uniformly.
func (c *Catalog) RandomFact() string {
	return c.Facts[rand.IntN(len(c.Facts))]
}

// Lesson returns the lesson text for topic, falling back to the rhythm lesson.
func (c *Catalog) Lesson(topic string) string {
	if text, ok := c.Lessons[topic]; ok {
		return text
	}
	return c.Lessons[DefaultTopic]
}
