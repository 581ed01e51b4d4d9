package driven

import (
	"context"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
)

// NoticeSource returns the latest notice published on a portal page.
// Returns ErrNotFound when the page has no notice entry.
type NoticeSource interface {
	LatestNotice(ctx context.Context, page string) (model.Notice, error)
}

// LectureSource fetches the lecture listing from the protected portal API.
// cachedToken may be empty. The returned token is the session id the portal
// accepted; callers persist it. It is also returned alongside a decode or API
// error once the HTTP call itself succeeded, and is empty otherwise.
type LectureSource interface {
	FetchLectures(ctx context.Context, cachedToken string) ([]model.Lecture, string, error)
}
