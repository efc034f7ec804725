package routing

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	FallbackContainer = "other"
	FallbackSubfolder = "misc"
)

// Rule routes every blob whose lower-cased name starts with Prefix.
// Container is a literal container name, or a logical key when the
// Resolver is configured with a ContainerLookup.
type Rule struct {
	Prefix    string `yaml:"prefix" json:"prefix"`
	Container string `yaml:"container" json:"container"`
	Subfolder string `yaml:"subfolder" json:"subfolder"`
}

type Destination struct {
	Container string `json:"container"`
	Subfolder string `json:"subfolder"`
}

func (d Destination) String() string {
	return d.Container + "/" + d.Subfolder
}

// Table is an ordered rule set; the first matching rule wins.
type Table struct {
	Rules    []Rule
	Fallback Destination
}

// ContainerLookup resolves logical container keys against runtime configuration.
type ContainerLookup interface {
	ContainerName(key string) (string, error)
}

type Resolver struct {
	Table      Table
	Containers ContainerLookup
}

func NewResolver(t Table, containers ContainerLookup) *Resolver {
	return &Resolver{
		Table:      t,
		Containers: containers,
	}
}

// Match returns the destination of the first rule matching name, or the
// table fallback. It never fails and does no container indirection.
func (t Table) Match(name string) Destination {
	fname := normalize(name)
	for _, r := range t.Rules {
		if strings.HasPrefix(fname, normalize(r.Prefix)) {
			return Destination{Container: r.Container, Subfolder: r.Subfolder}
		}
	}
	return t.Fallback
}

// Resolve maps a blob name to its archive destination. With a nil
// ContainerLookup it is a pure function of the table and never errors.
func (r *Resolver) Resolve(blobName string) (Destination, error) {
	d := r.Table.Match(blobName)
	if r.Containers == nil {
		return d, nil
	}
	name, err := r.Containers.ContainerName(d.Container)
	if err != nil {
		return Destination{}, &UnresolvableDestinationError{
			BlobName:     blobName,
			ContainerKey: d.Container,
			Err:          err,
		}
	}
	return Destination{Container: name, Subfolder: d.Subfolder}, nil
}

// Destinations lists every destination the table can produce, fallback last.
func (t Table) Destinations() []Destination {
	seen := map[Destination]bool{t.Fallback: true}
	var ds []Destination
	add := func(d Destination) {
		if !seen[d] {
			seen[d] = true
			ds = append(ds, d)
		}
	}
	for _, r := range t.Rules {
		add(Destination{Container: r.Container, Subfolder: r.Subfolder})
	}
	return append(ds, t.Fallback)
}

// a Caser is stateful, so one is built per call
func normalize(s string) string {
	return cases.Lower(language.Und).String(s)
}
