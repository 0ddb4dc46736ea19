// Package internal holds the adaptive execution core: the SQL static
// analysis pipeline, planners, executors, and the batch orchestrator.
package internal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lychee-technology/shardquery"
)

var (
	reLineComment  = regexp.MustCompile(`--[^\n]*`)
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reWhitespace   = regexp.MustCompile(`\s+`)

	reCaseOrEnd = regexp.MustCompile(`(?i)\b(CASE|END)\b`)
	reExists    = regexp.MustCompile(`(?i)\bEXISTS\s*$`)
	reSelectAt  = regexp.MustCompile(`(?i)^\s*SELECT\b`)

	reSelectKw = regexp.MustCompile(`(?i)\bSELECT\b`)
	reFromKw   = regexp.MustCompile(`(?i)\bFROM\b`)
	reWhereKw  = regexp.MustCompile(`(?i)\bWHERE\b`)
	reGroupBy  = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
	reOrderBy  = regexp.MustCompile(`(?i)\bORDER\s+BY\b`)
	reHaving   = regexp.MustCompile(`(?i)\bHAVING\b`)
	reLimitKw  = regexp.MustCompile(`(?i)\bLIMIT\b`)
	reOffsetKw = regexp.MustCompile(`(?i)\bOFFSET\b`)
)

// Clean strips comments, collapses whitespace runs, and removes a trailing
// semicolon. Idempotent: Clean(Clean(s)) == Clean(s).
func Clean(sql string) string {
	s := reBlockComment.ReplaceAllString(sql, " ")
	s = reLineComment.ReplaceAllString(s, "")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// depthPrefix returns, for every byte offset in s, the parenthesis depth
// immediately before that offset.
func depthPrefix(s string) []int {
	depths := make([]int, len(s)+1)
	d := 0
	for i := 0; i < len(s); i++ {
		depths[i] = d
		switch s[i] {
		case '(':
			d++
		case ')':
			d--
		}
	}
	depths[len(s)] = d
	return depths
}

func topLevelMatches(s string, re *regexp.Regexp, depths []int) [][2]int {
	var out [][2]int
	for _, m := range re.FindAllStringIndex(s, -1) {
		if m[0] < len(depths) && depths[m[0]] == 0 {
			out = append(out, [2]int{m[0], m[1]})
		}
	}
	return out
}

// Protect replaces every CASE...END expression and every EXISTS(...) /
// parenthesised SELECT sub-query with an opaque placeholder so that later
// top-level regex scans never misparse their internals. Returns the
// rewritten SQL and the placeholder -> original-text table.
func Protect(sql string) (string, map[string]string, error) {
	table := make(map[string]string)
	counter := 0

	caseProtected, err := protectCaseEnd(sql, table, &counter)
	if err != nil {
		return "", nil, err
	}

	subProtected, err := protectSubqueries(caseProtected, table, &counter)
	if err != nil {
		return "", nil, err
	}

	if strings.Count(subProtected, "(") != strings.Count(subProtected, ")") {
		return "", nil, NewProtectionImbalanceErrorUnbalancedParens(sql)
	}

	return subProtected, table, nil
}

func placeholder(n int) string {
	return fmt.Sprintf("__PROTECTED_%d__", n)
}

// protectCaseEnd pairs each CASE with its matching END honouring arbitrary
// nesting: a depth counter increments on every CASE and decrements on every
// END; the END that returns the counter to zero closes the CASE that opened
// it. Tokens are matched word-bounded via reCaseOrEnd.
func protectCaseEnd(s string, table map[string]string, counter *int) (string, error) {
	matches := reCaseOrEnd.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	type span struct{ start, end int }
	var spans []span

	depth := 0
	startIdx := -1
	for _, m := range matches {
		tokStart, tokEnd := m[0], m[1]
		word := strings.ToUpper(s[tokStart:tokEnd])
		switch word {
		case "CASE":
			if depth == 0 {
				startIdx = tokStart
			}
			depth++
		case "END":
			if depth > 0 {
				depth--
				if depth == 0 && startIdx >= 0 {
					spans = append(spans, span{startIdx, tokEnd})
					startIdx = -1
				}
			}
		}
	}
	if depth != 0 {
		return "", NewProtectionImbalanceErrorUnmatchedCaseEnd(s)
	}

	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(s[prev:sp.start])
		ph := placeholder(*counter)
		table[ph] = s[sp.start:sp.end]
		*counter++
		b.WriteString(ph)
		prev = sp.end
	}
	b.WriteString(s[prev:])
	return b.String(), nil
}

// protectSubqueries finds each '(' that opens either an EXISTS(...) or a
// parenthesised SELECT sub-query and replaces the whole construct (including
// a preceding EXISTS keyword) with a placeholder.
func protectSubqueries(s string, table map[string]string, counter *int) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '(' {
			b.WriteByte(s[i])
			i++
			continue
		}

		inner := s[i+1:]
		looksLikeSelect := reSelectAt.MatchString(inner)
		looksLikeExists := reExists.MatchString(s[:i])

		if !looksLikeSelect && !looksLikeExists {
			b.WriteByte(s[i])
			i++
			continue
		}

		start := i
		if looksLikeExists {
			loc := reExists.FindStringIndex(s[:i])
			if loc != nil {
				start = loc[0]
			}
		}

		depth := 1
		j := i + 1
		for ; j < len(s) && depth > 0; j++ {
			switch s[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
		}
		if depth != 0 {
			return "", NewProtectionImbalanceErrorUnbalancedParens(s)
		}

		prefixAlreadyWritten := b.String()
		if start < i {
			// the EXISTS keyword was already written to b; trim it back out
			// so the whole "EXISTS(...)" span becomes a single placeholder.
			trimTo := len(prefixAlreadyWritten) - (i - start)
			if trimTo < 0 {
				trimTo = 0
			}
			trimmed := prefixAlreadyWritten[:trimTo]
			b.Reset()
			b.WriteString(trimmed)
		}

		ph := placeholder(*counter)
		table[ph] = s[start:j]
		*counter++
		b.WriteString(ph)
		i = j
	}
	return b.String(), nil
}

// Restore substitutes every placeholder in sql' with its original text.
func Restore(protectedSQL string, table map[string]string) string {
	out := protectedSQL
	// A subquery's original text can itself hold a CASE placeholder, so keep
	// substituting until no placeholder from the table is left.
	for changed := true; changed; {
		changed = false
		for ph, original := range table {
			if strings.Contains(out, ph) {
				out = strings.ReplaceAll(out, ph, original)
				changed = true
			}
		}
	}
	return out
}

// SelectClause returns the SELECT-list text at the outer nesting level.
func SelectClause(sql string) string {
	depths := depthPrefix(sql)
	selects := topLevelMatches(sql, reSelectKw, depths)
	froms := topLevelMatches(sql, reFromKw, depths)
	if len(selects) == 0 {
		return ""
	}
	start := selects[0][1]
	end := len(sql)
	for _, f := range froms {
		if f[0] > start {
			end = f[0]
			break
		}
	}
	return strings.TrimSpace(sql[start:end])
}

// WhereClause returns the WHERE-clause text at the outer nesting level.
func WhereClause(sql string) string {
	depths := depthPrefix(sql)
	wheres := topLevelMatches(sql, reWhereKw, depths)
	if len(wheres) == 0 {
		return ""
	}
	start := wheres[0][1]
	end := nearestFollowing(sql, depths, start, reGroupBy, reOrderBy, reHaving, reLimitKw)
	return strings.TrimSpace(sql[start:end])
}

// GroupByFields returns the comma-split GROUP BY field list at the outer
// nesting level.
func GroupByFields(sql string) []string {
	depths := depthPrefix(sql)
	groups := topLevelMatches(sql, reGroupBy, depths)
	if len(groups) == 0 {
		return nil
	}
	start := groups[0][1]
	end := nearestFollowing(sql, depths, start, reHaving, reOrderBy, reLimitKw)
	return SplitFieldsSmart(sql[start:end])
}

func nearestFollowing(sql string, depths []int, from int, res ...*regexp.Regexp) int {
	end := len(sql)
	for _, re := range res {
		for _, m := range topLevelMatches(sql, re, depths) {
			if m[0] > from && m[0] < end {
				end = m[0]
			}
		}
	}
	return end
}

// StripOrderLimitOffset removes a trailing ORDER BY / LIMIT / OFFSET clause
// that lives at paren-depth 0, used before wrapping a query in a COUNT(*)
// shell. Clauses nested inside sub-queries are left untouched.
func StripOrderLimitOffset(sql string) string {
	depths := depthPrefix(sql)
	cut := len(sql)
	for _, re := range []*regexp.Regexp{reOrderBy, reLimitKw, reOffsetKw} {
		for _, m := range topLevelMatches(sql, re, depths) {
			if m[0] < cut {
				cut = m[0]
			}
		}
	}
	return strings.TrimSpace(sql[:cut])
}

// SplitFieldsSmart splits a comma-separated expression list on commas that
// sit at parenthesis-depth 0 relative to list itself.
func SplitFieldsSmart(list string) []string {
	depths := depthPrefix(list)
	var fields []string
	start := 0
	for i := 0; i < len(list); i++ {
		if list[i] == ',' && depths[i] == 0 {
			fields = append(fields, strings.TrimSpace(list[start:i]))
			start = i + 1
		}
	}
	tail := strings.TrimSpace(list[start:])
	if tail != "" {
		fields = append(fields, tail)
	}
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// NewProtectionImbalanceErrorUnbalancedParens builds the ProtectionImbalance
// error raised when a query's parentheses do not balance.
func NewProtectionImbalanceErrorUnbalancedParens(sql string) *shardquery.ShardQueryError {
	return shardquery.NewProtectionImbalanceError(shardquery.ErrCodeUnbalancedParens, "unbalanced parentheses in query").
		WithDetail("sql_length", len(sql))
}

// NewProtectionImbalanceErrorUnmatchedCaseEnd builds the ProtectionImbalance
// error raised when a CASE has no matching END.
func NewProtectionImbalanceErrorUnmatchedCaseEnd(sql string) *shardquery.ShardQueryError {
	return shardquery.NewProtectionImbalanceError(shardquery.ErrCodeUnmatchedCaseEnd, "unmatched CASE...END in query").
		WithDetail("sql_length", len(sql))
}
