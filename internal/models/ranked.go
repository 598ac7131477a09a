package models

// RankedItem is a candidate plus its score, rank position and the
// user-facing justification for that position. Computed from one
// CandidateStore snapshot; StoreVersion records which one, so a new
// research pass invalidates the shortlist.
type RankedItem struct {
	Item          CandidateItem `json:"item"`
	Score         float64       `json:"score"`
	Rank          int           `json:"rank"`
	Justification string        `json:"justification"`
	StoreVersion  int           `json:"store_version"`
}

// ShortlistEntry is the structured checkpoint payload shown to the user
// for selection. Rendering is the transport's concern.
type ShortlistEntry struct {
	Rank          int     `json:"rank"`
	ItemSummary   string  `json:"item_summary"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	Vendor        string  `json:"vendor"`
	Justification string  `json:"justification"`
}
