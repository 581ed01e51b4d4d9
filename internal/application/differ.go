package application

import (
	"log/slog"
	"time"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
)

// Diff compares a fetched lecture listing against the remembered set.
//
// Remembered lectures whose date is strictly before today (midnight in
// today's location) are dropped first; lectures whose date cannot be parsed
// are kept. Fetched lectures whose ID is not yet known are appended to both
// New and Merged, in fetched order. Only the ID takes part in identity, so a
// known lecture with changed details is not reported again.
func Diff(remembered, fetched []model.Lecture, today time.Time) model.Delta {
	loc := today.Location()
	y, m, d := today.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, loc)

	seen := make(map[string]struct{}, len(remembered)+len(fetched))
	merged := make([]model.Lecture, 0, len(remembered)+len(fetched))

	for _, l := range remembered {
		if _, dup := seen[l.ID]; dup {
			continue
		}
		date, err := l.Date(loc)
		if err != nil {
			slog.Warn("unparseable lecture date, keeping entry", "lecture_id", l.ID, "time", l.Time)
		} else if date.Before(cutoff) {
			slog.Debug("expired lecture dropped", "lecture_id", l.ID, "date", date.Format(time.DateOnly))
			continue
		}
		seen[l.ID] = struct{}{}
		merged = append(merged, l)
	}

	fresh := make([]model.Lecture, 0)
	for _, l := range fetched {
		if _, known := seen[l.ID]; known {
			continue
		}
		seen[l.ID] = struct{}{}
		fresh = append(fresh, l)
		merged = append(merged, l)
	}

	return model.Delta{New: fresh, Merged: merged}
}
