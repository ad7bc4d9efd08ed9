package model

import (
	"fmt"
	"image/color"
	"sort"
)

// Counting modes exposed by the API.
const (
	ModePeople   = "people"
	ModeVehicles = "vehicles"
)

// ClassInfo describes one countable class of the detector.
type ClassInfo struct {
	ID    int        `json:"id"`
	Label string     `json:"label"`
	Color color.RGBA `json:"-"`
}

// ClassCatalog is the fixed set of classes a counting mode recognizes.
// It is immutable once built; all accessors return copies.
type ClassCatalog struct {
	mode    string
	noun    string
	classes []ClassInfo
	byID    map[int]int
	byLabel map[string]int
}

// NewClassCatalog builds a catalog ordered by class id. Ids and labels must be unique.
func NewClassCatalog(mode, noun string, classes []ClassInfo) (*ClassCatalog, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: catalog %q has no classes", ErrInvalidInput, mode)
	}

	sorted := make([]ClassInfo, len(classes))
	copy(sorted, classes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	c := &ClassCatalog{
		mode:    mode,
		noun:    noun,
		classes: sorted,
		byID:    make(map[int]int, len(sorted)),
		byLabel: make(map[string]int, len(sorted)),
	}
	for i, class := range sorted {
		if class.Label == "" {
			return nil, fmt.Errorf("%w: class %d has no label", ErrInvalidInput, class.ID)
		}
		if _, dup := c.byID[class.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate class id %d", ErrInvalidInput, class.ID)
		}
		if _, dup := c.byLabel[class.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate class label %q", ErrInvalidInput, class.Label)
		}
		c.byID[class.ID] = i
		c.byLabel[class.Label] = i
	}
	return c, nil
}

func mustCatalog(mode, noun string, classes []ClassInfo) *ClassCatalog {
	c, err := NewClassCatalog(mode, noun, classes)
	if err != nil {
		panic(err)
	}
	return c
}

// COCO class ids, as used by the YOLO and SSD models.
var (
	PeopleCatalog = mustCatalog(ModePeople, "People", []ClassInfo{
		{ID: 0, Label: "person", Color: color.RGBA{R: 0, G: 255, B: 0, A: 255}},
	})

	VehicleCatalog = mustCatalog(ModeVehicles, "Vehicles", []ClassInfo{
		{ID: 2, Label: "car", Color: color.RGBA{R: 0, G: 255, B: 0, A: 255}},
		{ID: 3, Label: "motorcycle", Color: color.RGBA{R: 0, G: 0, B: 255, A: 255}},
		{ID: 5, Label: "bus", Color: color.RGBA{R: 255, G: 165, B: 0, A: 255}},
		{ID: 7, Label: "truck", Color: color.RGBA{R: 255, G: 0, B: 0, A: 255}},
	})
)

// CatalogForMode resolves the catalog of a counting mode.
func CatalogForMode(mode string) (*ClassCatalog, error) {
	switch mode {
	case ModePeople:
		return PeopleCatalog, nil
	case ModeVehicles:
		return VehicleCatalog, nil
	}
	return nil, fmt.Errorf("%w: unknown counting mode %q", ErrInvalidInput, mode)
}

func (c *ClassCatalog) Mode() string { return c.mode }

// Noun is the plural display name used in overlays ("People", "Vehicles").
func (c *ClassCatalog) Noun() string { return c.noun }

// Classes returns the catalog entries ordered by id.
func (c *ClassCatalog) Classes() []ClassInfo {
	out := make([]ClassInfo, len(c.classes))
	copy(out, c.classes)
	return out
}

// IDs returns the class ids, used as the detector's class filter.
func (c *ClassCatalog) IDs() []int {
	ids := make([]int, len(c.classes))
	for i, class := range c.classes {
		ids[i] = class.ID
	}
	return ids
}

// Labels returns the class labels in catalog order.
func (c *ClassCatalog) Labels() []string {
	labels := make([]string, len(c.classes))
	for i, class := range c.classes {
		labels[i] = class.Label
	}
	return labels
}

// Lookup returns the class for a detector class id.
func (c *ClassCatalog) Lookup(id int) (ClassInfo, bool) {
	i, ok := c.byID[id]
	if !ok {
		return ClassInfo{}, false
	}
	return c.classes[i], true
}

// Color returns the display color of a label, white when unknown.
func (c *ClassCatalog) Color(label string) color.RGBA {
	if i, ok := c.byLabel[label]; ok {
		return c.classes[i].Color
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}

// ZeroCounts returns a per-class map holding every label with a zero count.
func (c *ClassCatalog) ZeroCounts() map[string]int {
	counts := make(map[string]int, len(c.classes))
	for _, class := range c.classes {
		counts[class.Label] = 0
	}
	return counts
}
