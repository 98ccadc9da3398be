package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the fixed set of item classes a session must account for,
// plus the table mapping detector labels onto those classes.
type Catalog struct {
	classes []string
	index   map[string]struct{}
	aliases map[string]string

	// alias keys sorted, so partial matching is deterministic
	aliasKeys []string
}

type fileFormat struct {
	Classes []string          `yaml:"classes"`
	Aliases map[string]string `yaml:"aliases"`
}

// DefaultClasses is the standard toolkit.
var DefaultClasses = []string{
	"screwdriver_plus",
	"wrench_adjustable",
	"offset_cross",
	"ring_wrench_3_4",
	"nippers",
	"brace",
	"lock_pliers",
	"pliers",
	"shernitsa",
	"screwdriver_minus",
	"oil_can_opener",
}

// DefaultAliases maps the labels of the shipped YOLO model onto DefaultClasses.
var DefaultAliases = map[string]string{
	"1_screw_driver_minus": "screwdriver_minus",
	"2_screw_driver_plus":  "screwdriver_plus",
	"3_screw_driver_cross": "offset_cross",
	"4_brace":              "brace",
	"5_contouring_pliers":  "lock_pliers",
	"6_pliers":             "shernitsa",
	"7_slip_joint_pilers":  "wrench_adjustable",
	"8_wrench":             "oil_can_opener",
	"9_can_opener":         "pliers",
	"10_spanner":           "ring_wrench_3_4",
	"11_side_cutters":      "nippers",
}

func Default() *Catalog {
	c, err := New(DefaultClasses, DefaultAliases)
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a catalog. Classes must be non-empty and unique, and every
// alias must point to a known class.
func New(classes []string, aliases map[string]string) (*Catalog, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("catalog: no classes")
	}

	c := &Catalog{
		classes: make([]string, 0, len(classes)),
		index:   make(map[string]struct{}, len(classes)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, cl := range classes {
		cl = strings.TrimSpace(cl)
		if cl == "" {
			return nil, fmt.Errorf("catalog: empty class name")
		}
		if _, dup := c.index[cl]; dup {
			return nil, fmt.Errorf("catalog: duplicate class %q", cl)
		}
		c.index[cl] = struct{}{}
		c.classes = append(c.classes, cl)
	}
	for label, cl := range aliases {
		if _, ok := c.index[cl]; !ok {
			return nil, fmt.Errorf("catalog: alias %q points to unknown class %q", label, cl)
		}
		c.aliases[label] = cl
		c.aliasKeys = append(c.aliasKeys, label)
	}
	sort.Strings(c.aliasKeys)
	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}
	return New(f.Classes, f.Aliases)
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Classes returns a copy of the class list in catalog order.
func (c *Catalog) Classes() []string {
	out := make([]string, len(c.classes))
	copy(out, c.classes)
	return out
}

func (c *Catalog) Len() int {
	return len(c.classes)
}

func (c *Catalog) Contains(class string) bool {
	_, ok := c.index[class]
	return ok
}

// Expected returns the required count per class (one of each).
func (c *Catalog) Expected() map[string]int {
	out := make(map[string]int, len(c.classes))
	for _, cl := range c.classes {
		out[cl] = 1
	}
	return out
}

// Resolve maps a detector label onto a catalog class: an exact class name,
// an exact alias, then a case-insensitive containment match against aliases.
func (c *Catalog) Resolve(label string) (string, bool) {
	if c.Contains(label) {
		return label, true
	}
	if cl, ok := c.aliases[label]; ok {
		return cl, true
	}

	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return "", false
	}
	for _, cl := range c.classes {
		if strings.EqualFold(cl, l) {
			return cl, true
		}
	}
	for _, key := range c.aliasKeys {
		k := strings.ToLower(key)
		if strings.Contains(k, l) || strings.Contains(l, k) {
			return c.aliases[key], true
		}
	}
	return "", false
}
