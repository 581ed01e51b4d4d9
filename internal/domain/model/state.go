package model

// Keys under which the workflow persists its state.
const (
	StateKeySessionID = "sessionid"
	StateKeyLectures  = "lectures"
	// StateKeyNoticePrefix is followed by the page path.
	StateKeyNoticePrefix = "notice:"
)

// LectureSnapshotVersion is the current schema version of the persisted lecture list.
const LectureSnapshotVersion = 1

// LectureSnapshot is the persisted shape of the remembered lecture set.
type LectureSnapshot struct {
	Version  int       `json:"version"`
	Lectures []Lecture `json:"lectures"`
}
