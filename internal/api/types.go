package api

// PaginationMeta describes the window a list response covers. NextOffset is
// present only when the page came back full, signalling that another page may
// exist.
type PaginationMeta struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// pageMeta builds the meta block for a page of n items.
func pageMeta(limit, offset, n int) PaginationMeta {
	meta := PaginationMeta{Limit: limit, Offset: offset}
	if n == limit {
		next := offset + limit
		meta.NextOffset = &next
	}
	return meta
}
