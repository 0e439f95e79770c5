package domain

import "fmt"

// Shard is a unit of parallel work: a whole archive file, or a byte range
// of one. A shard owns every line whose first byte lies in
// [Offset, Offset+Length).
type Shard struct {
	Source string `json:"source"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

// Key identifies the shard for caching.
func (s Shard) Key() string {
	return fmt.Sprintf("%s@%d+%d", s.Source, s.Offset, s.Length)
}

func (s Shard) String() string {
	if s.Offset == 0 {
		return s.Source
	}
	return fmt.Sprintf("%s[%d:%d]", s.Source, s.Offset, s.Offset+s.Length)
}
