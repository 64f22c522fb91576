package clause

import (
	"strconv"
	"strings"
)

// OrderBy accumulates ordering terms in the order they are added.
type OrderBy struct {
	terms []string
}

// Asc appends `col ASC`.
func (o *OrderBy) Asc(col string) *OrderBy {
	o.terms = append(o.terms, col+" ASC")
	return o
}

// Desc appends `col DESC`.
func (o *OrderBy) Desc(col string) *OrderBy {
	o.terms = append(o.terms, col+" DESC")
	return o
}

// Render returns "" when no term was added, otherwise " ORDER BY ...".
func (o *OrderBy) Render() string {
	if o == nil || len(o.terms) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(o.terms, ", ")
}

// Limit renders " LIMIT n", or "" for n <= 0 (no limit).
func Limit(n int) string {
	if n <= 0 {
		return ""
	}
	return " LIMIT " + strconv.Itoa(n)
}
