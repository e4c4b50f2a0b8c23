package domain

// Cursor is the sync position of one conversation. DeltaToken walks forward
// in time, PageToken walks backward through history.
type Cursor struct {
	DeltaToken string
	PageToken  string
}

// HistoryIncomplete reports whether older messages remain to be fetched.
func (c Cursor) HistoryIncomplete() bool {
	return c.PageToken != ""
}

// Baseline reports whether no delta has been applied yet.
func (c Cursor) Baseline() bool {
	return c.DeltaToken == ""
}
