package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ID is the single identifier type for bookings, services, spas, customers,
// accounts and transactions. JSON input may carry it as a string or a number;
// both decode to the same canonical string form.
type ID string

func ParseID(s string) ID {
	return ID(strings.TrimSpace(s))
}

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == ""
}

func (id ID) Equal(other ID) bool {
	return id == other
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ParseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ParseID(n.String())
	return nil
}

// IDSet compares identifiers as a set; ordering and duplicates are ignored.
type IDSet map[ID]struct{}

func NewIDSet(ids ...ID) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

func (s IDSet) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Intersects(other IDSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for id := range small {
		if large.Contains(id) {
			return true
		}
	}
	return false
}

// Sorted returns the members in lexical order, for stable cache keys and logs.
func (s IDSet) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
