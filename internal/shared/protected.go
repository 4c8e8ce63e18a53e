package shared

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// IDSet is a set of row ids that must never be deleted.
// It decodes from a JSON array such as `[1, 2, 3]`.
type IDSet map[int64]struct{}

// Decode implements envconfig.Decoder.
func (s *IDSet) Decode(value string) error {
	set := IDSet{}
	value = strings.TrimSpace(value)
	if value != "" {
		var ids []int64
		if err := json.Unmarshal([]byte(value), &ids); err != nil {
			return fmt.Errorf("protected ids: %w", err)
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	*s = set
	return nil
}

// Contains reports whether id is protected.
func (s IDSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the protected ids in ascending order.
func (s IDSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Pair identifies an association row by its composite key.
type Pair [2]int64

// PairSet is a set of association keys that must never be deleted.
// It decodes from a JSON array of pairs such as `[[1, 1], [2, 5]]`.
type PairSet map[Pair]struct{}

// Decode implements envconfig.Decoder.
func (s *PairSet) Decode(value string) error {
	set := PairSet{}
	value = strings.TrimSpace(value)
	if value != "" {
		var pairs [][]int64
		if err := json.Unmarshal([]byte(value), &pairs); err != nil {
			return fmt.Errorf("protected pairs: %w", err)
		}
		for _, p := range pairs {
			if len(p) != 2 {
				return fmt.Errorf("protected pairs: %v is not a pair", p)
			}
			set[Pair{p[0], p[1]}] = struct{}{}
		}
	}
	*s = set
	return nil
}

// Contains reports whether the (a, b) key is protected.
func (s PairSet) Contains(a, b int64) bool {
	_, ok := s[Pair{a, b}]
	return ok
}
