package credit

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAMME ELIGIBILITY
// ══════════════════════════════════════════════════════════════════════════════

// Degree is the degree family a programme belongs to.
type Degree int

const (
	DegreeOther Degree = iota
	DegreeBCA
	DegreeBTech
)

// Degree name prefixes as printed by the portal.
const (
	prefixBCA   = "BACHELOR OF COMPUTER APPLICATION"
	prefixBTech = "BACHELOR OF TECHNOLOGY"
)

// String returns a short name for the degree.
func (d Degree) String() string {
	switch d {
	case DegreeBCA:
		return "BCA"
	case DegreeBTech:
		return "BTECH"
	default:
		return "OTHER"
	}
}

// Branch is an engineering branch acronym such as "CSE".
type Branch string

// Branches whose subjects historically carry uniform credit weight.
const (
	BranchCE  Branch = "CE"
	BranchCSE Branch = "CSE"
	BranchCST Branch = "CST"
	BranchECE Branch = "ECE"
	BranchEE  Branch = "EE"
	BranchEEE Branch = "EEE"
	BranchICE Branch = "ICE"
	BranchIT  Branch = "IT"
	BranchITE Branch = "ITE"
	BranchMAE Branch = "MAE"
	BranchME  Branch = "ME"
)

// DefaultBranches returns the built-in eligible branch set.
func DefaultBranches() []Branch {
	return []Branch{
		BranchCE, BranchCSE, BranchCST, BranchECE, BranchEE, BranchEEE,
		BranchICE, BranchIT, BranchITE, BranchMAE, BranchME,
	}
}

// Program is a parsed programme name.
type Program struct {
	Name   string `json:"name"`
	Degree Degree `json:"-"`
	// Branch is the acronym of the parenthesised branch, empty when absent.
	Branch Branch `json:"branch,omitempty"`
}

var upper = cases.Upper(language.Und)

// FoldProgram canonicalizes programme text: Unicode NFKC, upper case and
// single spaces. The portal mixes non-breaking spaces and full-width
// brackets into some programme names.
func FoldProgram(name string) string {
	folded := upper.String(norm.NFKC.String(name))
	return strings.Join(strings.Fields(folded), " ")
}

// ParseProgram extracts the degree family and branch acronym from a programme name
// such as "BACHELOR OF TECHNOLOGY (INFORMATION TECHNOLOGY)".
func ParseProgram(name string) Program {
	folded := FoldProgram(name)
	p := Program{Name: folded}

	switch {
	case strings.HasPrefix(folded, prefixBCA):
		p.Degree = DegreeBCA
	case strings.HasPrefix(folded, prefixBTech):
		p.Degree = DegreeBTech
	default:
		p.Degree = DegreeOther
	}

	if inner, ok := parenthesised(folded); ok {
		p.Branch = Acronym(inner)
	}
	return p
}

// Acronym takes the first ASCII letter of each whitespace separated word.
// Words with no letters (such as "&") contribute nothing.
func Acronym(text string) Branch {
	var b strings.Builder
	for _, word := range strings.Fields(text) {
		for _, r := range word {
			if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
				b.WriteRune(r &^ 0x20)
				break
			}
		}
	}
	return Branch(b.String())
}

// parenthesised returns the trimmed text inside the first "(...)" pair.
func parenthesised(s string) (string, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return "", false
	}
	closeIdx := strings.IndexByte(s[open+1:], ')')
	if closeIdx <= 0 {
		return "", false
	}
	inner := strings.TrimSpace(s[open+1 : open+1+closeIdx])
	return inner, inner != ""
}

// Policy decides which programmes may use fallback credits.
type Policy struct {
	branches map[Branch]struct{}
	disabled bool
}

// DefaultPolicy returns the policy with the built-in branch set.
func DefaultPolicy() Policy {
	return NewPolicy(DefaultBranches())
}

// NewPolicy builds a policy allowing exactly the given branches.
func NewPolicy(branches []Branch) Policy {
	set := make(map[Branch]struct{}, len(branches))
	for _, b := range branches {
		b = Branch(strings.ToUpper(strings.TrimSpace(string(b))))
		if b != "" {
			set[b] = struct{}{}
		}
	}
	return Policy{branches: set}
}

// DisabledPolicy never grants fallback credits.
func DisabledPolicy() Policy {
	return Policy{disabled: true}
}

// WithBranches returns a copy of the policy extended with extra branches.
func (p Policy) WithBranches(extra ...Branch) Policy {
	all := p.Branches()
	all = append(all, extra...)
	np := NewPolicy(all)
	np.disabled = p.disabled
	return np
}

// Branches lists the eligible branches.
func (p Policy) Branches() []Branch {
	out := make([]Branch, 0, len(p.branches))
	for b := range p.branches {
		out = append(out, b)
	}
	return out
}

// Eligible reports whether subjects of the programme may fall back to one credit.
func (p Policy) Eligible(program Program) bool {
	if p.disabled {
		return false
	}
	switch program.Degree {
	case DegreeBCA:
		return true
	case DegreeBTech:
		_, ok := p.branches[program.Branch]
		return ok
	default:
		return false
	}
}
