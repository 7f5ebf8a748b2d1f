package course

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed guest_catalog.yaml
var bundledCatalog []byte

type catalogFile struct {
	Courses []catalogCourse `yaml:"courses"`
}

type catalogCourse struct {
	Course         `yaml:",inline"`
	CreatedDaysAgo int           `yaml:"created_days_ago"`
	Questions      []RawQuestion `yaml:"questions"`

	valid []Question
}

// GuestSource serves the bundled demo catalog. It never touches the network
// and can only fail with ErrCourseNotFound.
type GuestSource struct {
	courses map[string]catalogCourse
	order   []string
	now     func() time.Time
}

// NewGuestSource loads the catalog bundled into the binary.
func NewGuestSource() (*GuestSource, error) {
	return ParseGuestCatalog(bundledCatalog)
}

// ParseGuestCatalog loads a guest catalog from YAML. Every course must carry
// at least one valid question; otherwise the whole catalog is rejected with an
// error wrapping ErrNoQuestionsAvailable or ErrQuestionsCorrupted.
func ParseGuestCatalog(data []byte) (*GuestSource, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing guest catalog: %w", err)
	}

	g := &GuestSource{
		courses: make(map[string]catalogCourse, len(file.Courses)),
		now:     time.Now,
	}
	for _, c := range file.Courses {
		if c.ID == "" {
			return nil, fmt.Errorf("guest catalog course without id: %q", c.Title)
		}
		if _, dup := g.courses[c.ID]; dup {
			return nil, fmt.Errorf("duplicate guest course id %q", c.ID)
		}
		valid, err := build(c.Questions)
		if err != nil {
			return nil, fmt.Errorf("guest course %q: %w", c.ID, err)
		}
		c.valid = valid
		g.courses[c.ID] = c
		g.order = append(g.order, c.ID)
	}
	return g, nil
}

// Resolve looks the course up in the catalog. The identity is ignored.
func (g *GuestSource) Resolve(_ context.Context, courseID string, _ Identity) (Course, []Question, error) {
	entry, ok := g.courses[courseID]
	if !ok {
		return Course{}, nil, ErrCourseNotFound
	}
	return g.summary(entry), slices.Clone(entry.valid), nil
}

// Courses lists the catalog courses in file order.
func (g *GuestSource) Courses() []Course {
	out := make([]Course, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.summary(g.courses[id]))
	}
	return out
}

func (g *GuestSource) summary(entry catalogCourse) Course {
	now := g.now().UTC()
	c := entry.Course
	c.CreatedAt = now.Add(-time.Duration(entry.CreatedDaysAgo) * 24 * time.Hour)
	c.UpdatedAt = now
	return c
}
