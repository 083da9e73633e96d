package rendering

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/jonathan/specsheet/internal/types"
)

// markerPattern matches a numbered placeholder such as {{B12}}.
var markerPattern = regexp.MustCompile(`\{\{B(\d+)\}\}`)

// Marker returns the placeholder token for a 1-based ordinal.
func Marker(ordinal int) string {
	return fmt.Sprintf("{{B%d}}", ordinal)
}

// Binding is one placeholder and the text it stands for.
type Binding struct {
	Token string
	Value string
}

// Bindings maps placeholder tokens to values, keeping row order.
type Bindings struct {
	list  []Binding
	index map[string]int
}

// BuildBindings binds row i (in current order) to {{B<i+1>}}.
// Absent final values bind to the empty string.
func BuildBindings(rows []types.ReconciledRow) *Bindings {
	b := &Bindings{
		list:  make([]Binding, 0, len(rows)),
		index: make(map[string]int, len(rows)),
	}
	for i, row := range rows {
		b.add(Marker(i+1), row.Final.String())
	}
	return b
}

// NewBindings builds bindings from explicit token/value pairs.
func NewBindings(pairs ...Binding) *Bindings {
	b := &Bindings{index: make(map[string]int, len(pairs))}
	for _, p := range pairs {
		b.add(p.Token, p.Value)
	}
	return b
}

func (b *Bindings) add(token, value string) {
	if i, ok := b.index[token]; ok {
		b.list[i].Value = value
		return
	}
	b.index[token] = len(b.list)
	b.list = append(b.list, Binding{Token: token, Value: value})
}

// Lookup returns the value bound to token.
func (b *Bindings) Lookup(token string) (string, bool) {
	if b == nil {
		return "", false
	}
	i, ok := b.index[token]
	if !ok {
		return "", false
	}
	return b.list[i].Value, true
}

// Len returns the number of bindings.
func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	return len(b.list)
}

// All returns the bindings in insertion order.
func (b *Bindings) All() []Binding {
	if b == nil {
		return nil
	}
	out := make([]Binding, len(b.list))
	copy(out, b.list)
	return out
}

// Map returns the bindings as a plain map.
func (b *Bindings) Map() map[string]string {
	out := make(map[string]string, b.Len())
	for _, kv := range b.All() {
		out[kv.Token] = kv.Value
	}
	return out
}

// sortMarkers orders tokens by their numeric index.
func sortMarkers(tokens []string) {
	sort.Slice(tokens, func(i, j int) bool {
		ni, nj := markerNumber(tokens[i]), markerNumber(tokens[j])
		if ni != nj {
			return ni < nj
		}
		return tokens[i] < tokens[j]
	})
}

func markerNumber(token string) int {
	m := markerPattern.FindStringSubmatch(token)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}
