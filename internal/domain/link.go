package domain

// Link is a directed edge between two tickets. The unordered endpoint pair
// is unique: no duplicate edge may exist in either direction, and self-loops
// are rejected at creation.
type Link struct {
	SrcID  int64
	DestID int64
}
