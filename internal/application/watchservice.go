// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// corruptSuffix is appended to a state key to keep an undecodable value aside.
const corruptSuffix = ".corrupt"

// WatchOptions tunes a WatchService.
type WatchOptions struct {
	// Pages are the portal pages checked for new notices.
	Pages []string
	// ReportErrors forwards a failed run through the fanout.
	ReportErrors bool
	// Now overrides the clock used for lecture expiry.
	Now func() time.Time
}

// WatchService runs one watch cycle: new notices, then new lectures, each
// reported through the fanout and remembered only once delivery succeeded.
type WatchService struct {
	notices  driven.NoticeSource
	lectures driven.LectureSource
	state    driven.StateStore
	session  driven.SessionStore
	fanout   *Fanout
	opts     WatchOptions
	now      func() time.Time
}

// NewWatchService creates a WatchService. notices or lectures may be nil to
// skip that step.
func NewWatchService(
	notices driven.NoticeSource,
	lectures driven.LectureSource,
	state driven.StateStore,
	session driven.SessionStore,
	fanout *Fanout,
	opts WatchOptions,
) *WatchService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &WatchService{
		notices:  notices,
		lectures: lectures,
		state:    state,
		session:  session,
		fanout:   fanout,
		opts:     opts,
		now:      now,
	}
}

// Execute runs one cycle and logs its outcome. When the run fails and
// ReportErrors is set, the failure is sent through the fanout once.
func (s *WatchService) Execute(ctx context.Context) error {
	start := time.Now()

	err := s.Run(ctx)
	if err != nil {
		slog.Error("watch cycle failed", "error", err, "duration", time.Since(start).Round(time.Millisecond))
		if s.opts.ReportErrors {
			s.ReportFailure(ctx, err)
		}
		return err
	}

	slog.Info("watch cycle complete", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Run checks notices, then lectures. A failure in one step does not skip the
// other; all failures are joined.
func (s *WatchService) Run(ctx context.Context) error {
	var errs []error

	if s.notices != nil && len(s.opts.Pages) > 0 {
		if err := s.checkNotices(ctx); err != nil {
			errs = append(errs, fmt.Errorf("notices: %w", err))
		}
	}

	if ctx.Err() != nil {
		return errors.Join(append(errs, ctx.Err())...)
	}

	if s.lectures != nil {
		if err := s.checkLectures(ctx); err != nil {
			errs = append(errs, fmt.Errorf("lectures: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ReportFailure sends runErr through the fanout. A failure to report is only
// logged.
func (s *WatchService) ReportFailure(ctx context.Context, runErr error) {
	if err := s.fanout.Send(ctx, FailureMessage(runErr)); err != nil {
		slog.Error("failed to report run failure", "error", err)
	}
}

func (s *WatchService) checkNotices(ctx context.Context) error {
	var (
		pageErrs []error
		fresh    []model.Notice
	)

	for _, page := range s.opts.Pages {
		notice, err := s.notices.LatestNotice(ctx, page)
		if err != nil {
			slog.Warn("notice page check failed", "page", page, "error", err)
			pageErrs = append(pageErrs, fmt.Errorf("page %s: %w", page, err))
			continue
		}

		last, ok, err := s.state.Get(ctx, model.StateKeyNoticePrefix+page)
		if err != nil {
			return errors.Join(append(pageErrs, err)...)
		}
		if ok && last == notice.URL {
			slog.Debug("no new notice", "page", page)
			continue
		}

		slog.Info("new notice found", "page", page, "url", notice.URL, "title", notice.Title)
		fresh = append(fresh, notice)
	}

	if err := s.fanout.Send(ctx, NoticeMessage(fresh)); err != nil {
		return errors.Join(append(pageErrs, err)...)
	}

	for _, n := range fresh {
		if err := s.state.Set(ctx, model.StateKeyNoticePrefix+n.Page, n.URL); err != nil {
			pageErrs = append(pageErrs, fmt.Errorf("save marker for %s: %w", n.Page, err))
		}
	}

	slog.Info("notice check complete", "pages", len(s.opts.Pages), "new", len(fresh), "errors", len(pageErrs))
	return errors.Join(pageErrs...)
}

func (s *WatchService) checkLectures(ctx context.Context) error {
	token, err := s.session.Get(ctx)
	if err != nil {
		slog.Warn("stored session unreadable, logging in afresh", "error", err)
		token = ""
	}

	remembered, err := s.loadLectures(ctx)
	if err != nil {
		return err
	}

	fetched, usedToken, fetchErr := s.lectures.FetchLectures(ctx, token)
	if usedToken != "" && usedToken != token {
		if err := s.session.Set(ctx, usedToken); err != nil {
			return errors.Join(fetchErr, fmt.Errorf("save session: %w", err))
		}
		slog.Debug("session refreshed")
	}
	if fetchErr != nil {
		return fetchErr
	}

	delta := Diff(remembered, fetched, s.now())

	if err := s.fanout.Send(ctx, LectureMessage(delta.New)); err != nil {
		return err
	}

	if err := s.state.SaveLectures(ctx, delta.Merged); err != nil {
		return fmt.Errorf("save lectures: %w", err)
	}

	slog.Info("lecture check complete", "fetched", len(fetched), "new", len(delta.New), "remembered", len(delta.Merged))
	return nil
}

// loadLectures returns the remembered set. A corrupt snapshot is kept aside
// under its key plus ".corrupt" and treated as empty.
func (s *WatchService) loadLectures(ctx context.Context) ([]model.Lecture, error) {
	remembered, err := s.state.LoadLectures(ctx)
	if err == nil {
		return remembered, nil
	}
	if !errors.Is(err, driven.ErrCorruptState) {
		return nil, fmt.Errorf("load lectures: %w", err)
	}

	slog.Error("lecture snapshot is corrupt, starting from an empty set", "error", err)

	raw, ok, getErr := s.state.Get(ctx, model.StateKeyLectures)
	if getErr != nil {
		return nil, fmt.Errorf("read corrupt lecture snapshot: %w", getErr)
	}
	if ok {
		if setErr := s.state.Set(ctx, model.StateKeyLectures+corruptSuffix, raw); setErr != nil {
			return nil, fmt.Errorf("back up corrupt lecture snapshot: %w", setErr)
		}
	}
	return []model.Lecture{}, nil
}
