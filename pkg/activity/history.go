package activity

import "sort"

// CommandHistory returns one page of projected statuses for every tracked
// command of the given type, most recent first, along with the filtered
// total before pagination.
//
// pageIndex is 0-indexed. Ordering is descending StartTime; ties are broken
// by insertion order, stable within one snapshot. Commands inserted or
// mutated while paging may shift between pages; each call is an independent
// snapshot.
func (s *Store) CommandHistory(commandType string, pageIndex, pageSize int) ([]*CommandStatus, int) {
	var filtered []*CommandState
	for _, cs := range s.commandSnapshot() {
		if cs.commandType == commandType {
			filtered = append(filtered, cs)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if !a.startTime.Equal(b.startTime) {
			return a.startTime.After(b.startTime)
		}
		return a.seq < b.seq
	})

	total := len(filtered)
	if pageIndex < 0 || pageSize <= 0 {
		return nil, total
	}

	start := pageIndex * pageSize
	if start >= total {
		return nil, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	page := make([]*CommandStatus, 0, end-start)
	for _, cs := range filtered[start:end] {
		page = append(page, Project(cs))
	}
	return page, total
}
