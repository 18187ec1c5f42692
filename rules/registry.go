package rules

import "sort"

// catalog lists every built-in rule. All returns a defensive copy sorted
// by rule id, which is also the registry's dispatch order.
var catalog = []Rule{
	DeadCodeRule{},
	IneffectiveEqualsHashCodeRule{},
	ArrayEqualsRule{},
	EmptyCatchRule{},
	InsecureAPIRule{},
	ReturnInFinallyRule{},
	ThreadRunDirectCallRule{},
	NullnessRule{},
	ExceptionCauseNotPreservedRule{},
	MutateUnmodifiableCollectionRule{},
	InterruptedExceptionRule{},
	LockNotReleasedOnExceptionPathRule{},
}

// All returns the built-in rule catalog sorted by id.
func All() []Rule {
	out := make([]Rule, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata().ID < out[j].Metadata().ID
	})
	return out
}
