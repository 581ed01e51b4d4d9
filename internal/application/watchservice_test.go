package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/seewatch/internal/application"
	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockStateStore struct {
	mu       sync.Mutex
	values   map[string]string
	lectures []model.Lecture
	corrupt  bool
	saves    int
}

func newMockStateStore() *mockStateStore {
	return &mockStateStore{values: map[string]string{}}
}

func (m *mockStateStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockStateStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockStateStore) LoadLectures(_ context.Context) ([]model.Lecture, error) {
	if m.corrupt {
		return nil, fmt.Errorf("lecture snapshot: %w", driven.ErrCorruptState)
	}
	return append([]model.Lecture{}, m.lectures...), nil
}

func (m *mockStateStore) SaveLectures(_ context.Context, lectures []model.Lecture) error {
	m.saves++
	m.corrupt = false
	m.lectures = lectures
	return nil
}

type mockSessionStore struct {
	id     string
	getErr error
	sets   []string
}

func (m *mockSessionStore) Get(_ context.Context) (string, error) {
	return m.id, m.getErr
}

func (m *mockSessionStore) Set(_ context.Context, id string) error {
	m.sets = append(m.sets, id)
	m.id = id
	return nil
}

type mockNoticeSource struct {
	notices map[string]model.Notice
	errs    map[string]error
}

func (m *mockNoticeSource) LatestNotice(_ context.Context, page string) (model.Notice, error) {
	if err := m.errs[page]; err != nil {
		return model.Notice{}, err
	}
	n, ok := m.notices[page]
	if !ok {
		return model.Notice{}, driven.ErrNotFound
	}
	return n, nil
}

type mockLectureSource struct {
	fetchFn     func(ctx context.Context, cachedToken string) ([]model.Lecture, string, error)
	gotToken    string
	fetchCalled int
}

func (m *mockLectureSource) FetchLectures(ctx context.Context, cachedToken string) ([]model.Lecture, string, error) {
	m.fetchCalled++
	m.gotToken = cachedToken
	return m.fetchFn(ctx, cachedToken)
}

var fixedNow = func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) }

func notice(page, id string) model.Notice {
	return model.Notice{Page: page, Title: "Notice " + id, URL: "https://see.example.edu/info/" + id + ".htm"}
}

// --- Lectures ---

func TestRun_LecturesNewAndPersisted(t *testing.T) {
	state := newMockStateStore()
	state.lectures = []model.Lecture{lecture("a", "2099-01-01"), lecture("old", "2026-03-01")}
	session := &mockSessionStore{id: "cached"}
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return []model.Lecture{lecture("a", ""), lecture("b", "2099-01-01")}, "cached", nil
	}}
	push := newMockNotifier("sct", nil)
	svc := application.NewWatchService(nil, source, state, session,
		application.NewFanout([]string{"sct"}, push), application.WatchOptions{Now: fixedNow})

	err := svc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "cached", source.gotToken)
	assert.Empty(t, session.sets, "unchanged token is not rewritten")
	assert.Equal(t, []string{"a", "b"}, ids(state.lectures))
	require.Equal(t, int32(1), push.calls.Load())
	assert.Equal(t, 1, push.got[0].Count)
	assert.Equal(t, model.MessageKindLectures, push.got[0].Kind)
}

func TestRun_LecturesSecondRunSendsNothing(t *testing.T) {
	state := newMockStateStore()
	session := &mockSessionStore{}
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return []model.Lecture{lecture("a", "2099-01-01")}, "fresh", nil
	}}
	push := newMockNotifier("sct", nil)
	svc := application.NewWatchService(nil, source, state, session,
		application.NewFanout([]string{"sct"}, push), application.WatchOptions{Now: fixedNow})

	require.NoError(t, svc.Run(context.Background()))
	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, int32(1), push.calls.Load())
	assert.Equal(t, []string{"fresh"}, session.sets)
	assert.Equal(t, "fresh", source.gotToken, "second run reuses the persisted session")
}

func TestRun_LecturesNotSavedWhenFanoutFails(t *testing.T) {
	state := newMockStateStore()
	session := &mockSessionStore{id: "old"}
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return []model.Lecture{lecture("a", "2099-01-01")}, "new-session", nil
	}}
	push := newMockNotifier("sct", errors.New("HTTP 502"))
	svc := application.NewWatchService(nil, source, state, session,
		application.NewFanout([]string{"sct"}, push), application.WatchOptions{Now: fixedNow})

	err := svc.Run(context.Background())

	var fanErr *driven.FanoutError
	require.True(t, errors.As(err, &fanErr), "expected FanoutError, got %v", err)
	assert.Zero(t, state.saves, "delta is redelivered next run")
	assert.Equal(t, []string{"new-session"}, session.sets, "the working session is kept regardless")
}

func TestRun_LecturesFetchError(t *testing.T) {
	state := newMockStateStore()
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return nil, "", &driven.APIError{Code: 500, Message: "system busy"}
	}}
	svc := application.NewWatchService(nil, source, state, &mockSessionStore{},
		application.NewFanout(nil), application.WatchOptions{Now: fixedNow})

	err := svc.Run(context.Background())

	var apiErr *driven.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, state.saves)
}

func TestRun_LecturesAPIErrorStillPersistsFreshSession(t *testing.T) {
	state := newMockStateStore()
	session := &mockSessionStore{id: "stale"}
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return nil, "fresh", &driven.APIError{Code: 500, Message: "busy"}
	}}
	svc := application.NewWatchService(nil, source, state, session,
		application.NewFanout(nil), application.WatchOptions{Now: fixedNow})

	err := svc.Run(context.Background())

	var apiErr *driven.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, []string{"fresh"}, session.sets, "next run reuses the accepted session")
	assert.Zero(t, state.saves)
}

func TestRun_LecturesTransportErrorKeepsStoredSession(t *testing.T) {
	session := &mockSessionStore{id: "stale"}
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return nil, "", &driven.TransportError{Op: "fetch lectures", StatusCode: 401}
	}}
	svc := application.NewWatchService(nil, source, newMockStateStore(), session,
		application.NewFanout(nil), application.WatchOptions{Now: fixedNow})

	err := svc.Run(context.Background())

	require.Error(t, err)
	assert.Empty(t, session.sets)
	assert.Equal(t, "stale", session.id)
}

func TestRun_CorruptSnapshotBackedUp(t *testing.T) {
	state := newMockStateStore()
	state.corrupt = true
	state.values[model.StateKeyLectures] = "garbage"
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return []model.Lecture{lecture("a", "2099-01-01")}, "s", nil
	}}
	svc := application.NewWatchService(nil, source, state, &mockSessionStore{id: "s"},
		application.NewFanout(nil), application.WatchOptions{Now: fixedNow})

	err := svc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "garbage", state.values[model.StateKeyLectures+".corrupt"])
	assert.Equal(t, []string{"a"}, ids(state.lectures))
}

func TestRun_UnreadableSessionLogsInAfresh(t *testing.T) {
	session := &mockSessionStore{id: "ignored", getErr: driven.ErrEncryptionKeyNotSet}
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return nil, "fresh", nil
	}}
	svc := application.NewWatchService(nil, source, newMockStateStore(), session,
		application.NewFanout(nil), application.WatchOptions{Now: fixedNow})

	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, "", source.gotToken)
	assert.Equal(t, []string{"fresh"}, session.sets)
}

// --- Notices ---

func TestRun_NoticesMarkersSavedAfterDelivery(t *testing.T) {
	state := newMockStateStore()
	state.values["notice:tzgg.htm"] = notice("tzgg.htm", "1").URL
	source := &mockNoticeSource{notices: map[string]model.Notice{
		"tzgg.htm": notice("tzgg.htm", "1"),
		"xsdt.htm": notice("xsdt.htm", "2"),
	}}
	push := newMockNotifier("sc3", nil)
	svc := application.NewWatchService(source, nil, state, &mockSessionStore{},
		application.NewFanout([]string{"sc3"}, push),
		application.WatchOptions{Pages: []string{"tzgg.htm", "xsdt.htm"}})

	err := svc.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, int32(1), push.calls.Load())
	assert.Equal(t, 1, push.got[0].Count)
	assert.Equal(t, []string{"Notice 2"}, push.got[0].Lines)
	assert.Equal(t, notice("xsdt.htm", "2").URL, state.values["notice:xsdt.htm"])
}

func TestRun_NoticesNotMarkedWhenDeliveryFails(t *testing.T) {
	state := newMockStateStore()
	source := &mockNoticeSource{notices: map[string]model.Notice{"tzgg.htm": notice("tzgg.htm", "1")}}
	push := newMockNotifier("sct", errors.New("down"))
	svc := application.NewWatchService(source, nil, state, &mockSessionStore{},
		application.NewFanout([]string{"sct"}, push),
		application.WatchOptions{Pages: []string{"tzgg.htm"}})

	err := svc.Run(context.Background())

	require.Error(t, err)
	_, ok := state.values["notice:tzgg.htm"]
	assert.False(t, ok)
}

func TestRun_NoticePageErrorDoesNotStopOthers(t *testing.T) {
	state := newMockStateStore()
	source := &mockNoticeSource{
		notices: map[string]model.Notice{"xsdt.htm": notice("xsdt.htm", "2")},
		errs:    map[string]error{"tzgg.htm": &driven.TransportError{Op: "fetch page tzgg.htm", StatusCode: 503}},
	}
	lectures := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return nil, "s", nil
	}}
	push := newMockNotifier("sct", nil)
	svc := application.NewWatchService(source, lectures, state, &mockSessionStore{id: "s"},
		application.NewFanout([]string{"sct"}, push),
		application.WatchOptions{Pages: []string{"tzgg.htm", "xsdt.htm"}, Now: fixedNow})

	err := svc.Run(context.Background())

	require.Error(t, err)
	assert.True(t, driven.IsStatus(err, 503))
	assert.Equal(t, notice("xsdt.htm", "2").URL, state.values["notice:xsdt.htm"])
	assert.Equal(t, 1, lectures.fetchCalled, "lecture step still runs")
}

// --- Failure reporting ---

func TestExecute_ReportsFailureOnce(t *testing.T) {
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return nil, "", &driven.HandshakeError{Reason: "no redirect params"}
	}}
	push := newMockNotifier("sct", errors.New("report channel down too"))
	svc := application.NewWatchService(nil, source, newMockStateStore(), &mockSessionStore{},
		application.NewFanout([]string{"sct"}, push),
		application.WatchOptions{ReportErrors: true, Now: fixedNow})

	err := svc.Execute(context.Background())

	require.Error(t, err)
	require.Equal(t, int32(1), push.calls.Load(), "a failed report is not retried")
	assert.Equal(t, model.MessageKindFailure, push.got[0].Kind)
	assert.Contains(t, push.got[0].Body, "no redirect params")
}

func TestExecute_NoReportWhenDisabled(t *testing.T) {
	source := &mockLectureSource{fetchFn: func(context.Context, string) ([]model.Lecture, string, error) {
		return nil, "", errors.New("boom")
	}}
	push := newMockNotifier("sct", nil)
	svc := application.NewWatchService(nil, source, newMockStateStore(), &mockSessionStore{},
		application.NewFanout([]string{"sct"}, push), application.WatchOptions{Now: fixedNow})

	require.Error(t, svc.Execute(context.Background()))
	assert.Zero(t, push.calls.Load())
}
