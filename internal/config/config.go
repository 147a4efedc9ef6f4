package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/avanderberg/scrumline/internal/domain"
)

// BacklogSettings are the file-side parts of a backlog configuration:
// displayed columns and the planned-items flag. The database row carries the
// name, scope type, and ticket types.
type BacklogSettings struct {
	Columns             []domain.BacklogColumn
	IncludePlannedItems bool
}

// Config is the explicit configuration object passed to every component: the
// ticket type schemas, the link rules, and per-backlog display settings.
// A Config is immutable after construction; components cache nothing beyond
// the Config's own lifetime.
type Config struct {
	schemas  map[string]*domain.TypeSchema
	order    []string
	rules    *domain.LinkRules
	backlogs map[string]BacklogSettings
}

var _ domain.SchemaSet = (*Config)(nil)

// SchemaFor returns the schema of a ticket type, or nil for unknown types.
func (c *Config) SchemaFor(ticketType string) *domain.TypeSchema {
	return c.schemas[ticketType]
}

// LinkRules returns the configured link allow and cascade sets.
func (c *Config) LinkRules() *domain.LinkRules { return c.rules }

// TypeNames returns the configured ticket types in declaration order.
func (c *Config) TypeNames() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// BacklogSettings returns the file-side settings for a backlog name.
func (c *Config) BacklogSettings(name string) BacklogSettings {
	return c.backlogs[name]
}

// Default returns the built-in configuration: the four standard ticket types
// with their field lists, the default link rules, and the standard backlog
// display settings.
func Default() *Config {
	c := &Config{
		schemas:  map[string]*domain.TypeSchema{},
		backlogs: map[string]BacklogSettings{},
	}

	standard := append([]string(nil), domain.StandardFields...)
	c.addType(domain.TypeRequirement,
		append(standard, domain.FieldBusinessValue),
		map[string]string{domain.FieldStatus: domain.StatusNew},
	)
	c.addType(domain.TypeUserStory,
		append(standard, domain.FieldSprint, domain.FieldStoryPriority, domain.FieldStoryPoints),
		map[string]string{domain.FieldStatus: domain.StatusNew},
	)
	c.addType(domain.TypeTask,
		append(withoutField(standard, domain.FieldMilestone),
			domain.FieldSprint, domain.FieldRemainingTime, domain.FieldResources),
		map[string]string{domain.FieldStatus: domain.StatusNew},
	)
	c.addType(domain.TypeBug,
		append(standard, domain.FieldSprint, domain.FieldRemainingTime, domain.FieldResources),
		map[string]string{domain.FieldStatus: domain.StatusNew},
	)

	c.schemas[domain.TypeUserStory].Calculated = []domain.CalculatedField{
		sumOverOutgoing("total_remaining_time", domain.FieldRemainingTime),
	}
	c.schemas[domain.TypeRequirement].Calculated = []domain.CalculatedField{
		sumOverOutgoing("total_story_points", domain.FieldStoryPoints),
	}

	c.rules = &domain.LinkRules{
		Allowed: map[domain.TypePair]bool{
			{Src: domain.TypeRequirement, Dest: domain.TypeUserStory}: true,
			{Src: domain.TypeUserStory, Dest: domain.TypeTask}:        true,
			{Src: domain.TypeBug, Dest: domain.TypeTask}:              true,
			{Src: domain.TypeUserStory, Dest: domain.TypeBug}:         true,
		},
		Cascade: map[domain.TypePair]bool{
			{Src: domain.TypeUserStory, Dest: domain.TypeTask}: true,
		},
	}

	c.backlogs["Product Backlog"] = BacklogSettings{
		Columns: domain.ParseBacklogColumns([]string{
			domain.FieldBusinessValue, domain.FieldStoryPriority, domain.FieldStoryPoints,
		}),
	}
	c.backlogs["Sprint Backlog"] = BacklogSettings{
		Columns: domain.ParseBacklogColumns([]string{
			domain.FieldRemainingTime + "|" + domain.FieldStoryPoints,
			domain.FieldOwner,
		}),
	}
	return c
}

func (c *Config) addType(name string, fields []string, defaults map[string]string) {
	c.schemas[name] = &domain.TypeSchema{Name: name, Fields: fields, Defaults: defaults}
	c.order = append(c.order, name)
}

func withoutField(fields []string, drop string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != drop {
			out = append(out, f)
		}
	}
	return out
}

// sumOverOutgoing builds a calculated field that sums a numeric field over
// the outgoing closure of the ticket. Traversal uses the in-memory link
// caches and carries a visited set so cyclic graphs terminate.
func sumOverOutgoing(name, field string) domain.CalculatedField {
	return domain.CalculatedField{
		Name: name,
		Compute: func(t *domain.Ticket) string {
			seen := map[int64]bool{t.ID: true}
			total, any := sumClosure(t, field, seen)
			if !any {
				return ""
			}
			return strconv.FormatFloat(total, 'f', -1, 64)
		},
	}
}

func sumClosure(t *domain.Ticket, field string, seen map[int64]bool) (float64, bool) {
	var total float64
	var any bool
	for _, child := range t.Outgoing() {
		if seen[child.ID] {
			continue
		}
		seen[child.ID] = true
		if v := strings.TrimSpace(child.Value(field)); v != "" {
			var f float64
			if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
				total += f
				any = true
			}
		}
		sub, subAny := sumClosure(child, field, seen)
		total += sub
		any = any || subAny
	}
	return total, any
}

// File layout for Load.
type fileConfig struct {
	Types    map[string]fileType    `yaml:"types"`
	Links    fileLinks              `yaml:"links"`
	Backlogs map[string]fileBacklog `yaml:"backlogs"`
}

type fileType struct {
	Fields     []string          `yaml:"fields"`
	Defaults   map[string]string `yaml:"defaults"`
	Calculated []fileCalculated  `yaml:"calculated"`
	Skip       []string          `yaml:"skip"`
}

type fileCalculated struct {
	Name  string `yaml:"name"`
	Op    string `yaml:"op"`
	Field string `yaml:"field"`
}

type fileLinks struct {
	Allow   []string `yaml:"allow"`
	Cascade []string `yaml:"cascade"`
}

type fileBacklog struct {
	Columns             []string `yaml:"columns"`
	IncludePlannedItems bool     `yaml:"include_planned_items"`
}

// Load reads a YAML configuration file and merges it over the defaults.
// Types, links, and backlog settings given in the file replace the built-in
// entries of the same name; everything else keeps its default.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	c := Default()
	for name, ft := range fc.Types {
		schema := &domain.TypeSchema{Name: name, Fields: ft.Fields, Defaults: ft.Defaults, Skip: ft.Skip}
		for _, calc := range ft.Calculated {
			if calc.Op != "" && calc.Op != "sum" {
				return nil, fmt.Errorf("calculated field %s.%s: unknown op %q", name, calc.Name, calc.Op)
			}
			schema.Calculated = append(schema.Calculated, sumOverOutgoing(calc.Name, calc.Field))
		}
		if _, known := c.schemas[name]; !known {
			c.order = append(c.order, name)
		}
		c.schemas[name] = schema
	}
	sort.Strings(c.order[len(Default().order):])

	if len(fc.Links.Allow) > 0 {
		allowed, err := parsePairs(fc.Links.Allow)
		if err != nil {
			return nil, err
		}
		c.rules.Allowed = allowed
	}
	if len(fc.Links.Cascade) > 0 {
		cascade, err := parsePairs(fc.Links.Cascade)
		if err != nil {
			return nil, err
		}
		c.rules.Cascade = cascade
	}

	for name, fb := range fc.Backlogs {
		c.backlogs[name] = BacklogSettings{
			Columns:             domain.ParseBacklogColumns(fb.Columns),
			IncludePlannedItems: fb.IncludePlannedItems,
		}
	}
	return c, nil
}

// parsePairs parses "src->dest" type pair descriptors.
func parsePairs(descriptors []string) (map[domain.TypePair]bool, error) {
	out := make(map[domain.TypePair]bool, len(descriptors))
	for _, d := range descriptors {
		parts := strings.Split(d, "->")
		if len(parts) != 2 {
			return nil, fmt.Errorf("link pair %q: want the form src->dest", d)
		}
		out[domain.TypePair{
			Src:  strings.TrimSpace(parts[0]),
			Dest: strings.TrimSpace(parts[1]),
		}] = true
	}
	return out, nil
}
