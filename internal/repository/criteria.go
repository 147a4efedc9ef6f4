package repository

import (
	"fmt"
	"strings"

	"github.com/avanderberg/scrumline/internal/domain"
)

// Criteria maps a field name to a condition. A condition is one of:
//
//   - a scalar (string, integer, float): equality
//   - nil: IS NULL or empty string
//   - a string starting with one of !=, <>, >=, <=, =, >, <: that
//     comparison against the remainder
//   - "in (v1, v2, ...)" / "not in (...)": set membership
//   - a domain entity pointer: equality on the entity's key
type Criteria map[string]any

type sqlCond struct {
	expr string
	args []any
}

var comparisonOps = []string{"!=", "<>", ">=", "<=", "=", ">", "<"}

// buildCondition translates one criteria entry into a SQL fragment for the
// given column expression.
func buildCondition(columnExpr string, condition any) (sqlCond, error) {
	if condition == nil {
		return sqlCond{expr: fmt.Sprintf("(%s IS NULL OR %s = '')", columnExpr, columnExpr)}, nil
	}
	if key, ok := foreignKey(condition); ok {
		return sqlCond{expr: columnExpr + " = ?", args: []any{key}}, nil
	}
	s, isString := condition.(string)
	if !isString {
		return sqlCond{expr: columnExpr + " = ?", args: []any{condition}}, nil
	}

	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "not in") {
		values, err := parseValueList(trimmed[len("not in"):])
		if err != nil {
			return sqlCond{}, err
		}
		return membership(columnExpr, values, true), nil
	}
	if strings.HasPrefix(lower, "in") && strings.Contains(trimmed, "(") {
		values, err := parseValueList(trimmed[len("in"):])
		if err != nil {
			return sqlCond{}, err
		}
		return membership(columnExpr, values, false), nil
	}
	for _, op := range comparisonOps {
		if strings.HasPrefix(trimmed, op) {
			value := strings.TrimSpace(trimmed[len(op):])
			return sqlCond{expr: fmt.Sprintf("%s %s ?", columnExpr, op), args: []any{value}}, nil
		}
	}
	return sqlCond{expr: columnExpr + " = ?", args: []any{s}}, nil
}

func membership(columnExpr string, values []string, negate bool) sqlCond {
	if len(values) == 0 {
		// Nothing can be a member of the empty set.
		if negate {
			return sqlCond{expr: "1 = 1"}
		}
		return sqlCond{expr: "1 = 0"}
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return sqlCond{
		expr: fmt.Sprintf("%s %s (%s)", columnExpr, op,
			strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")),
		args: args,
	}
}

// parseValueList tokenizes a parenthesized, comma-separated value list.
// Values may be quoted with single or double quotes (backslash escapes the
// next rune) or bare. This replaces the eval-based parsing of the ancestry.
func parseValueList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("membership condition %q: want a parenthesized list", s)
	}
	inner := s[1 : len(s)-1]

	var values []string
	var current strings.Builder
	var quote rune
	escaped := false
	flush := func(quoted bool) {
		v := current.String()
		if !quoted {
			v = strings.TrimSpace(v)
			if v == "" {
				current.Reset()
				return
			}
		}
		values = append(values, v)
		current.Reset()
	}
	quotedCurrent := false

	for _, r := range inner {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quote != 0:
			switch r {
			case '\\':
				escaped = true
			case quote:
				quote = 0
			default:
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			if strings.TrimSpace(current.String()) == "" {
				current.Reset()
			}
			quote = r
			quotedCurrent = true
		case r == ',':
			flush(quotedCurrent)
			quotedCurrent = false
		default:
			current.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("membership condition: unterminated quote")
	}
	if current.Len() > 0 || quotedCurrent {
		flush(quotedCurrent)
	}
	return values, nil
}

// foreignKey maps a related-entity instance to its key value.
func foreignKey(v any) (any, bool) {
	switch e := v.(type) {
	case *domain.Ticket:
		return e.ID, true
	case *domain.Sprint:
		return e.Name, true
	case *domain.Milestone:
		return e.Name, true
	case *domain.Team:
		return e.Name, true
	case *domain.TeamMember:
		return e.Name, true
	}
	return nil, false
}

// orderColumn is one entry of an order-by list: a column name optionally
// prefixed with '-' for descending order.
type orderColumn struct {
	name string
	desc bool
}

func parseOrder(cols []string) []orderColumn {
	out := make([]orderColumn, 0, len(cols))
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.HasPrefix(c, "-") {
			out = append(out, orderColumn{name: c[1:], desc: true})
		} else {
			out = append(out, orderColumn{name: c, desc: false})
		}
	}
	return out
}
