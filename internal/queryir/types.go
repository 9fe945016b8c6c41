package queryir

// Field names a filterable journal column.
type Field string

// Filterable fields.
const (
	FieldTrigger   Field = "trigger"    // pass trigger
	FieldPassToken Field = "pass_token" // pass token
	FieldOp        Field = "op"         // mutation op
	FieldTargetID  Field = "target_id"  // layer or source id
)

// Fields lists every filterable field.
var Fields = []Field{FieldTrigger, FieldPassToken, FieldOp, FieldTargetID}

// Query selects journaled mutations.
//
// This is a sealed interface; Select is the only query today.
type Query interface {
	queryNode()
}

// Predicate is a filter condition.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal value
//   - And: all predicates must be true
//   - Failed: the mutation failed
//   - SeqAtLeast: the pass seq is at least Seq
type Predicate interface {
	predicateNode()
}

// Select returns every mutation matching Filter (nil matches all). A
// positive Limit keeps the first Limit rows in journal order.
type Select struct {
	Filter Predicate
	Limit  int
}

func (Select) queryNode() {}

// Equals matches rows whose field equals Value exactly.
type Equals struct {
	Field Field
	Value string
}

func (Equals) predicateNode() {}

// And matches rows matching every predicate. An empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Failed matches mutations that returned an error.
type Failed struct{}

func (Failed) predicateNode() {}

// SeqAtLeast matches mutations of passes numbered Seq or later.
type SeqAtLeast struct {
	Seq int64
}

func (SeqAtLeast) predicateNode() {}

// All combines predicates with And, dropping nils. It returns nil for no
// predicates and the predicate itself for one.
func All(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Predicates: kept}
	}
}
