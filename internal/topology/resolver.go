// Package topology resolves a node name to the siblings and cousins it
// shares hardware with, and decides whether a name is a real, configured
// node at all. RegexResolver is pure: no I/O, no suspension points.
// ShellResolver (shell.go) runs an external command for every query.
package topology

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NodeType describes one class of node the cluster config recognizes:
// a hostname prefix, the digit width of the trailing number, the valid
// numeric range, and the card/blade group sizes used to compute siblings
// and cousins.
type NodeType struct {
	Prefix    string `yaml:"prefix"`
	Digits    *int   `yaml:"digits,omitempty"`
	FirstNum  *int   `yaml:"first_num,omitempty"`
	LastNum   *int   `yaml:"last_num,omitempty"`
	CardSize  *int   `yaml:"board,omitempty"` // nodes sharing a card ("board" in the original prototype)
	BladeSize *int   `yaml:"slot,omitempty"`  // nodes sharing a blade ("slot" in the original prototype); must be >= CardSize
}

func (nt NodeType) pattern() *regexp.Regexp {
	if nt.Digits != nil {
		return regexp.MustCompile(fmt.Sprintf(`^%s\d{%d}$`, regexp.QuoteMeta(nt.Prefix), *nt.Digits))
	}
	return regexp.MustCompile(fmt.Sprintf(`^%s\d+$`, regexp.QuoteMeta(nt.Prefix)))
}

// match reports whether name belongs to this NodeType and, if so, returns
// its trailing numeric value.
func (nt NodeType) match(name string) (num int, ok bool) {
	if !nt.pattern().MatchString(name) {
		return 0, false
	}
	digits := strings.TrimPrefix(name, nt.Prefix)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	first := 1
	if nt.FirstNum != nil {
		first = *nt.FirstNum
	}
	if n < first {
		return 0, false
	}
	if nt.LastNum != nil && n > *nt.LastNum {
		return 0, false
	}
	return n, true
}

// related computes the contiguous block of `size` node names containing
// num, zero-padded to nt.Digits if set. When size <= 1 the block is just
// the input node itself — siblings() and cousins() both include the
// target, matching the reference cluster resolver's convention.
func (nt NodeType) related(name string, num, size int) []string {
	if size <= 1 {
		return []string{name}
	}
	start := ((num-1)/size)*size + 1
	out := make([]string, 0, size)
	for i := start; i < start+size; i++ {
		if nt.Digits != nil {
			out = append(out, fmt.Sprintf("%s%0*d", nt.Prefix, *nt.Digits, i))
		} else {
			out = append(out, fmt.Sprintf("%s%d", nt.Prefix, i))
		}
	}
	return out
}

// Resolver is the capability set the rest of the system needs from the
// topology: map a node to its siblings/cousins, and decide whether a
// name is a real, configured node.
type Resolver interface {
	Siblings(name string) []string
	Cousins(name string) []string
	IsRealNode(name string) bool
}

// RegexResolver is the pattern-based Resolver implementation, driven by
// an ordered list of NodeType records. Ordering determines precedence
// when prefixes overlap — the first matching NodeType wins.
type RegexResolver struct {
	nodeTypes []NodeType
}

// NewRegexResolver builds a RegexResolver from an ordered NodeType list.
func NewRegexResolver(nodeTypes []NodeType) *RegexResolver {
	return &RegexResolver{nodeTypes: append([]NodeType(nil), nodeTypes...)}
}

func (r *RegexResolver) find(name string) (NodeType, int, bool) {
	for _, nt := range r.nodeTypes {
		if num, ok := nt.match(name); ok {
			return nt, num, true
		}
	}
	return NodeType{}, 0, false
}

// IsRealNode reports whether name matches a configured NodeType.
func (r *RegexResolver) IsRealNode(name string) bool {
	_, _, ok := r.find(name)
	return ok
}

// Siblings returns the contiguous block of nodes sharing a card with
// name, including name itself. Returns nil if name matches no NodeType.
func (r *RegexResolver) Siblings(name string) []string {
	nt, num, ok := r.find(name)
	if !ok {
		return nil
	}
	size := 1
	if nt.CardSize != nil {
		size = *nt.CardSize
	}
	return nt.related(name, num, size)
}

// Cousins returns the contiguous block of nodes sharing a blade with
// name, including name itself. Returns nil if name matches no NodeType.
func (r *RegexResolver) Cousins(name string) []string {
	nt, num, ok := r.find(name)
	if !ok {
		return nil
	}
	size := 0
	if nt.BladeSize != nil {
		size = *nt.BladeSize
	} else if nt.CardSize != nil {
		size = *nt.CardSize
	}
	if size == 0 {
		size = 1
	}
	return nt.related(name, num, size)
}

var _ Resolver = (*RegexResolver)(nil)
