package scenario

import (
	"fmt"
	"strings"

	"github.com/chewxy/sexp"
)

// S-expression navigation helpers

// items converts an s-expression list to a Go slice.
func items(s sexp.Sexp) []sexp.Sexp {
	switch l := s.(type) {
	case nil:
		return nil
	case sexp.List:
		return []sexp.Sexp(l)
	}
	if s.IsLeaf() {
		return nil
	}

	var out []sexp.Sexp
	for s != nil && !s.IsLeaf() {
		if l, ok := s.(sexp.List); ok {
			return append(out, l...)
		}
		out = append(out, s.Head())
		s = s.Tail()
	}
	return out
}

// atom returns the text of a leaf with any string quotes removed.
func atom(s sexp.Sexp) (string, bool) {
	switch a := s.(type) {
	case nil, sexp.List:
		return "", false
	case sexp.Symbol:
		return strings.Trim(string(a), `"`), true
	}
	if !s.IsLeaf() {
		return "", false
	}
	return strings.Trim(fmt.Sprint(s), `"`), true
}

// empty reports whether s is the empty list.
func empty(s sexp.Sexp) bool {
	l, ok := s.(sexp.List)
	return ok && len(l) == 0
}

// keyed splits (key v1 v2 ...) into its key and values.
func keyed(s sexp.Sexp) (string, []sexp.Sexp, bool) {
	list := items(s)
	if len(list) == 0 {
		return "", nil, false
	}
	key, ok := atom(list[0])
	if !ok {
		return "", nil, false
	}
	return strings.ToLower(key), list[1:], true
}
