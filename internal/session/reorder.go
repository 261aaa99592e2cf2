package session

import "formdeck/internal/fields"

// Reorder moves the field sourceID to the index currently held by targetID.
// Missing or equal ids leave the order untouched. The input is never mutated.
func Reorder(seq []fields.Field, sourceID, targetID string) []fields.Field {
	out := fields.Clone(seq)
	if sourceID == targetID {
		return out
	}
	from, to := indexOf(out, sourceID), indexOf(out, targetID)
	if from < 0 || to < 0 {
		return out
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]fields.Field{moved}, out[to:]...)...)
	return out
}

func indexOf(seq []fields.Field, id string) int {
	for i, f := range seq {
		if f.ID == id {
			return i
		}
	}
	return -1
}
