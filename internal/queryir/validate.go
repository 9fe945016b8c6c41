package queryir

import (
	"fmt"
	"slices"
)

// Validate checks a query and returns every problem found. A nil result
// means the query can be compiled.
//
// Validate is a pure function with no side effects.
func Validate(q Query) []error {
	v := &validator{}
	v.validateQuery(q)
	return v.errs
}

// validator accumulates errors during traversal.
type validator struct {
	errs []error
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addError("nil query")
			return
		}
		v.validateSelect(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.Limit < 0 {
		v.addError("limit must be non-negative, got %d", sel.Limit)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addError("nil predicate")
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Failed, *Failed:
	case SeqAtLeast:
		v.validateSeq(pred)
	case *SeqAtLeast:
		v.validateSeq(*pred)
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	if !slices.Contains(Fields, eq.Field) {
		v.addError("unknown field %q", eq.Field)
	}
	if eq.Value == "" {
		v.addError("field %q compared to empty value", eq.Field)
	}
}

func (v *validator) validateSeq(s SeqAtLeast) {
	if s.Seq < 0 {
		v.addError("seq must be non-negative, got %d", s.Seq)
	}
}
