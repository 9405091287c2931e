package differenceutil

// DifferenceAndIntersection  O(len(src) + len(des)), duplicates are reported once
func DifferenceAndIntersection[K comparable](src, des []K) (onlySrc, intersection, onlyDes []K) {
	m := make(map[K]uint8, len(src)+len(des))
	order := make([]K, 0, len(src)+len(des))
	mark := func(k K, bit uint8) {
		if _, ok := m[k]; !ok {
			order = append(order, k)
		}
		m[k] |= bit
	}
	for _, k := range src {
		mark(k, 1<<0)
	}
	for _, k := range des {
		mark(k, 1<<1)
	}

	for _, k := range order {
		v := m[k]
		a := v&(1<<0) != 0
		b := v&(1<<1) != 0
		switch {
		case a && b:
			intersection = append(intersection, k)
		case a && !b:
			onlySrc = append(onlySrc, k)
		case !a && b:
			onlyDes = append(onlyDes, k)
		}
	}

	return
}

// DifferenceAndIntersectionStrings  O(len(src) + len(des))
func DifferenceAndIntersectionStrings(src, des []string) (onlySrc, intersection, onlyDes []string) {
	return DifferenceAndIntersection(src, des)
}
