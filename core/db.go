package core

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrderings keeps the orderings whose field is in `allowed`, mapped to the storage field name.
// `fallback` is returned when nothing is left.
func CleanOrderings(orderings []DBOrdering, allowed map[string]string, fallback ...DBOrdering) []DBOrdering {
	cleaned := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if field, ok := allowed[ord.Field]; ok {
			cleaned = append(cleaned, DBOrdering{Field: field, Ascending: ord.Ascending})
		}
	}
	if len(cleaned) == 0 {
		return fallback
	}
	return cleaned
}
