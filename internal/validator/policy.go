package validator

import (
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Policy is the trust boundary applied to every submission.
type Policy struct {
	// AllowedImports holds top-level module names a submission may import.
	AllowedImports mapset.Set[string]
	// DeniedCalls holds built-in names that may not be called unqualified.
	DeniedCalls mapset.Set[string]
}

// DefaultPolicy allows the data libraries the CSV scripts need and denies
// the built-ins that read files or evaluate strings.
func DefaultPolicy() Policy {
	return NewPolicy(
		[]string{"pandas", "numpy"},
		[]string{"exec", "eval", "open"},
	)
}

// NewPolicy builds a Policy from plain lists. Blank entries are ignored.
func NewPolicy(allowedImports, deniedCalls []string) Policy {
	return Policy{
		AllowedImports: toSet(allowedImports),
		DeniedCalls:    toSet(deniedCalls),
	}
}

// ImportAllowed reports whether module (possibly dotted) may be imported.
// Only the part before the first dot is checked.
func (p Policy) ImportAllowed(module string) bool {
	top, _, _ := strings.Cut(module, ".")
	return p.AllowedImports.Contains(top)
}

// CallDenied reports whether an unqualified call to name is forbidden.
func (p Policy) CallDenied(name string) bool {
	return p.DeniedCalls.Contains(name)
}

// Describe returns both lists sorted, for logs and CLI output.
func (p Policy) Describe() (allowed, denied []string) {
	allowed = p.AllowedImports.ToSlice()
	denied = p.DeniedCalls.ToSlice()
	slices.Sort(allowed)
	slices.Sort(denied)
	return allowed, denied
}

func toSet(items []string) mapset.Set[string] {
	set := mapset.NewSet[string]()
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			set.Add(item)
		}
	}
	return set
}
