package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// QuotaKey names a quota target: either a Group or the region pseudo-group.
type QuotaKey string

// RegionQuota targets candidates from underrepresented regions regardless of
// their group.
const RegionQuota QuotaKey = "UNDERREPRESENTED_REGION"

// GroupQuota returns the quota key for g.
func GroupQuota(g Group) QuotaKey { return QuotaKey(g) }

// ParseQuotaKey accepts a group tag or the region pseudo-group name.
func ParseQuotaKey(s string) (QuotaKey, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	if QuotaKey(norm) == RegionQuota {
		return RegionQuota, nil
	}
	g, err := ParseGroup(norm)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownQuotaKey, s)
	}
	return GroupQuota(g), nil
}

// IsRegion reports whether k is the region pseudo-group.
func (k QuotaKey) IsRegion() bool { return k == RegionQuota }

// Matches reports whether c counts toward k.
func (k QuotaKey) Matches(c *Candidate) bool {
	if k.IsRegion() {
		return c.FromUnderrepresentedRegion
	}
	return QuotaKey(c.Group) == k
}

func (k QuotaKey) String() string { return string(k) }

// QuotaSpec maps quota keys to the minimum fraction of seats they must hold.
type QuotaSpec map[QuotaKey]float64

// DefaultQuotaSpec returns the reservation policy used when callers do not
// supply one.
func DefaultQuotaSpec() QuotaSpec {
	return QuotaSpec{
		GroupQuota(GroupSC):  0.15,
		GroupQuota(GroupST):  0.075,
		GroupQuota(GroupOBC): 0.27,
		RegionQuota:          0.20,
	}
}

// Keys returns the keys in sorted order.
func (q QuotaSpec) Keys() []QuotaKey {
	keys := make([]QuotaKey, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// GroupSum adds the fractions of group keys. The region pseudo-group overlaps
// the groups and is left out.
func (q QuotaSpec) GroupSum() float64 {
	sum := 0.0
	for k, f := range q {
		if !k.IsRegion() {
			sum += f
		}
	}
	return sum
}

// Validate checks that every key is known and every fraction is a finite,
// non-negative number.
func (q QuotaSpec) Validate() []string {
	var problems []string
	for _, k := range q.Keys() {
		if parsed, err := ParseQuotaKey(string(k)); err != nil || parsed != k {
			problems = append(problems, fmt.Sprintf("quota %q: unknown key", k))
			continue
		}
		f := q[k]
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			problems = append(problems, fmt.Sprintf("quota %q: fraction %v must be finite and non-negative", k, f))
		}
	}
	return problems
}

// Clone returns a copy of q.
func (q QuotaSpec) Clone() QuotaSpec {
	out := make(QuotaSpec, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}
