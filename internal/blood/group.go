package blood

import "strings"

// Group is the ABO/Rh blood group of a tested unit.
type Group string

const (
	GroupAPos  Group = "A+"
	GroupANeg  Group = "A-"
	GroupBPos  Group = "B+"
	GroupBNeg  Group = "B-"
	GroupABPos Group = "AB+"
	GroupABNeg Group = "AB-"
	GroupOPos  Group = "O+"
	GroupONeg  Group = "O-"
)

// Groups lists the 8 standard buckets in display order.
var Groups = []Group{
	GroupAPos, GroupANeg,
	GroupBPos, GroupBNeg,
	GroupABPos, GroupABNeg,
	GroupOPos, GroupONeg,
}

var groupAliases = map[string]Group{
	"A+": GroupAPos, "APOS": GroupAPos, "A_POSITIVE": GroupAPos,
	"A-": GroupANeg, "ANEG": GroupANeg, "A_NEGATIVE": GroupANeg,
	"B+": GroupBPos, "BPOS": GroupBPos, "B_POSITIVE": GroupBPos,
	"B-": GroupBNeg, "BNEG": GroupBNeg, "B_NEGATIVE": GroupBNeg,
	"AB+": GroupABPos, "ABPOS": GroupABPos, "AB_POSITIVE": GroupABPos,
	"AB-": GroupABNeg, "ABNEG": GroupABNeg, "AB_NEGATIVE": GroupABNeg,
	"O+": GroupOPos, "OPOS": GroupOPos, "O_POSITIVE": GroupOPos,
	"O-": GroupONeg, "ONEG": GroupONeg, "O_NEGATIVE": GroupONeg,
}

// ParseGroup maps human input like "a+" or "O_NEGATIVE" to a Group.
func ParseGroup(s string) (Group, bool) {
	g, ok := groupAliases[strings.ToUpper(strings.TrimSpace(s))]
	return g, ok
}

// GroupFilter is either no filter or an exact group, decided at the API
// boundary. The query layer never sees raw strings, so an unparseable
// filter can't silently widen a query.
type GroupFilter struct {
	group Group
	exact bool
}

func NoFilter() GroupFilter {
	return GroupFilter{}
}

func Exact(g Group) GroupFilter {
	return GroupFilter{group: g, exact: true}
}

// Group returns the filtered group and whether filtering applies.
func (f GroupFilter) Group() (Group, bool) {
	return f.group, f.exact
}

// Matches reports whether a unit's tested group passes the filter.
// An untested unit (nil group) matches only the empty filter.
func (f GroupFilter) Matches(g *Group) bool {
	if !f.exact {
		return true
	}
	return g != nil && *g == f.group
}
