package model

import (
	"strings"
	"time"
)

// Lecture is one entry of the portal's lecture listing. ID is the identity key:
// two lectures with the same ID are the same lecture, whatever the other fields say.
type Lecture struct {
	ID      string `json:"lectureId"`
	Title   string `json:"cathedra"`
	Level   string `json:"classLevelName"`
	Time    string `json:"lectureTime"`
	Speaker string `json:"nameSpeaker"`
}

// lectureDateLayouts are tried in order against the leading date of Lecture.Time.
var lectureDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006年01月02日",
	"2006年1月2日",
}

// Date parses the calendar day the lecture takes place on. Time is free text
// such as "2024-05-20 14:00-16:00", so only the leading date is considered.
// The returned time is midnight in loc.
func (l Lecture) Date(loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(l.Time)
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}

	var firstErr error
	for _, layout := range lectureDateLayouts {
		d, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return d, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Delta is the outcome of comparing a fetched lecture listing against the
// remembered one. New preserves fetched order; Merged is the remembered set
// (minus expired entries) followed by New.
type Delta struct {
	New    []Lecture
	Merged []Lecture
}
