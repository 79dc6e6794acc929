package datatree

import (
	generrors "github.com/stdg/reqs-builder/internal/errors"
)

// Merge deep-merges later into prior and returns a new tree. Neither input
// is modified. Conflicts are reported as *errors.GenError with the dotted
// key path of the collision.
//
// Rules, applied per key:
//   - object + object: merged recursively;
//   - sequence + sequence: an empty side yields the other side, two
//     non-empty sequences are an ArrayMergeConflict;
//   - scalar + scalar: later wins;
//   - null on either side of a container: the container is kept;
//   - any other shape mismatch: ShapeMergeConflict.
func Merge(prior, later Tree) (Tree, error) {
	merged, err := mergeObjects(prior, later)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeAll folds trees left to right, starting from an empty tree.
func MergeAll(trees ...Tree) (Tree, error) {
	acc := Tree{}
	for _, t := range trees {
		var err error
		if acc, err = Merge(acc, t); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func mergeValue(prior, later interface{}) (interface{}, error) {
	pk, lk := KindOf(prior), KindOf(later)

	switch {
	case pk == KindObject && lk == KindObject:
		return mergeObjects(prior.(map[string]interface{}), later.(map[string]interface{}))
	case pk == KindSequence && lk == KindSequence:
		return mergeSequences(prior.([]interface{}), later.([]interface{}))
	case isScalarLike(pk) && isScalarLike(lk):
		return mergeScalars(prior, later), nil
	case pk == KindNull:
		return later, nil
	case lk == KindNull:
		return prior, nil
	default:
		return nil, generrors.NewShapeMergeConflict("", pk.String(), lk.String())
	}
}

// mergeObjects copies prior and merges every key of later into the copy.
// Keys are visited in lexical order so the reported conflict is stable.
func mergeObjects(prior, later map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(prior)+len(later))
	for k, v := range prior {
		out[k] = v
	}

	for _, key := range Keys(later) {
		laterValue := later[key]
		priorValue, exists := out[key]
		if !exists {
			out[key] = laterValue
			continue
		}

		merged, err := mergeValue(priorValue, laterValue)
		if err != nil {
			return nil, generrors.AtKey(err, key)
		}
		out[key] = merged
	}
	return out, nil
}

// mergeSequences treats sequences as atomic: they are never concatenated.
func mergeSequences(prior, later []interface{}) ([]interface{}, error) {
	switch {
	case len(prior) == 0:
		return later, nil
	case len(later) == 0:
		return prior, nil
	default:
		return nil, generrors.NewArrayMergeConflict("")
	}
}

func mergeScalars(_, later interface{}) interface{} {
	return later
}

func isScalarLike(k Kind) bool {
	return k == KindScalar || k == KindNull
}
