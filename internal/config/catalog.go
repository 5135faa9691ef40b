package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog describes the booking platform: where it lives, which rooms it
// offers and when they are open. Loaded from platform.yaml.
type Catalog struct {
	BaseURL    string `yaml:"base_url"`
	CategoryID string `yaml:"category_id"`
	OrgID      string `yaml:"org_id"`
	Rooms      []Room `yaml:"rooms"`
	Hours      Hours  `yaml:"hours"`
	Limits     Limits `yaml:"limits"`
}

type Room struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// Hours are whole hours of the day in the platform's time zone.
type Hours struct {
	Open        int `yaml:"open"`
	LatestStart int `yaml:"latest_start"`
	Close       int `yaml:"close"`
}

// Limits bound what a preference may ask for.
type Limits struct {
	MaxStartTolerance    int `yaml:"max_start_tolerance"`
	MaxDurationTolerance int `yaml:"max_duration_tolerance"`
}

// DefaultCatalog is used when no catalog file exists.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		Rooms: []Room{
			{ID: 36, Name: "二楼南自习室(201)"},
			{ID: 35, Name: "二楼北自习室(202)"},
			{ID: 31, Name: "三楼南自习室(301)"},
			{ID: 37, Name: "三楼北自习室(302)"},
		},
	}
	c.applyDefaults()
	return c
}

// LoadCatalog reads the catalog at path, falling back to DefaultCatalog when
// the file does not exist.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog unmarshals YAML bytes into a validated Catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if len(c.Rooms) == 0 {
		c.Rooms = DefaultCatalog().Rooms
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://jxnu.huitu.zhishulib.com"
	}
	if c.CategoryID == "" {
		c.CategoryID = "591"
	}
	if c.OrgID == "" {
		c.OrgID = "142"
	}
	if c.Hours == (Hours{}) {
		c.Hours = Hours{Open: 7, LatestStart: 19, Close: 22}
	}
	if c.Limits == (Limits{}) {
		c.Limits = Limits{MaxStartTolerance: 4, MaxDurationTolerance: 6}
	}
}

func (c *Catalog) validate() error {
	var errs []string
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		errs = append(errs, "base_url must be an http(s) URL")
	}
	seen := map[int]bool{}
	for i, r := range c.Rooms {
		if r.ID <= 0 {
			errs = append(errs, fmt.Sprintf("rooms[%d].id must be positive", i))
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Sprintf("rooms[%d].id %d is duplicated", i, r.ID))
		}
		seen[r.ID] = true
	}
	h := c.Hours
	if h.Open < 0 || h.Open > h.LatestStart || h.LatestStart >= h.Close || h.Close > 24 {
		errs = append(errs, "hours must satisfy 0 <= open <= latest_start < close <= 24")
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Room returns the room with id.
func (c *Catalog) Room(id int) (Room, bool) {
	for _, r := range c.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// RoomIDs returns the room ids in ascending order.
func (c *Catalog) RoomIDs() []int {
	ids := make([]int, 0, len(c.Rooms))
	for _, r := range c.Rooms {
		ids = append(ids, r.ID)
	}
	sort.Ints(ids)
	return ids
}
