// Package queryir is the filter language over the sync journal.
//
// A Query selects journaled mutations together with the pass that issued
// them. Its Filter is a tree of predicates over a fixed set of fields:
//
//	Select{Filter: And{Predicates: []Predicate{
//	    Equals{Field: FieldTrigger, Value: "debounce"},
//	    Equals{Field: FieldOp, Value: "add_layer"},
//	    Failed{},
//	}}}
//
// Query and Predicate are sealed: only types in this package implement
// them, so backends can switch over them exhaustively. The SQL backend lives
// in querysql.
//
// Results are always ordered by pass seq, then pass token, then the
// mutation's position in its pass.
package queryir
