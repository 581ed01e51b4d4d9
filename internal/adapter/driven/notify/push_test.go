package notify_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/seewatch/internal/adapter/driven/notify"
	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

var lectureMsg = model.Message{
	Kind:  model.MessageKindLectures,
	Count: 1,
	Title: "找到新的同济大讲堂",
	Short: `"Bridges"等1条同济大讲堂`,
	Body:  "|主题|级别|主讲人|时间|\n|:-:|:-:|:-:|:-:|\n|Bridges|University|Dr. Li|2099-06-01|",
	Tags:  "同济大学|同济大讲堂",
}

// pushServer captures the path and form of every request.
type pushServer struct {
	mu     sync.Mutex
	status int
	paths  []string
	forms  []url.Values
}

func newPushServer(t *testing.T, status int) (*pushServer, *httptest.Server) {
	t.Helper()
	ps := &pushServer{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ps.mu.Lock()
		ps.paths = append(ps.paths, r.URL.Path)
		ps.forms = append(ps.forms, r.PostForm)
		ps.mu.Unlock()
		w.WriteHeader(ps.status)
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	t.Cleanup(srv.Close)
	return ps, srv
}

func TestServerChanTurbo_Send(t *testing.T) {
	ps, srv := newPushServer(t, http.StatusOK)
	backend := notify.NewServerChanTurbo("SCT123", srv.Client()).WithEndpoint(srv.URL + "/%s.send")

	err := backend.Send(context.Background(), lectureMsg)

	require.NoError(t, err)
	assert.Equal(t, "sct", backend.Name())
	require.Len(t, ps.forms, 1)
	assert.Equal(t, "/SCT123.send", ps.paths[0])
	assert.Equal(t, lectureMsg.Title, ps.forms[0].Get("title"))
	assert.Equal(t, lectureMsg.Body, ps.forms[0].Get("desp"))
	assert.Equal(t, lectureMsg.Short, ps.forms[0].Get("short"))
	assert.Empty(t, ps.forms[0].Get("tags"), "ServerChan Turbo takes no tags")
}

func TestServerChan3_SendsTags(t *testing.T) {
	ps, srv := newPushServer(t, http.StatusOK)
	backend := notify.NewServerChan3("sctp42", srv.Client()).WithEndpoint(srv.URL + "/%s/send")

	err := backend.Send(context.Background(), lectureMsg)

	require.NoError(t, err)
	assert.Equal(t, "sc3", backend.Name())
	require.Len(t, ps.forms, 1)
	assert.Equal(t, "/sctp42/send", ps.paths[0])
	assert.Equal(t, "同济大学|同济大讲堂", ps.forms[0].Get("tags"))
}

func TestPush_Non2xx(t *testing.T) {
	_, srv := newPushServer(t, http.StatusBadRequest)
	backend := notify.NewServerChanTurbo("SCT123", srv.Client()).WithEndpoint(srv.URL + "/%s.send")

	err := backend.Send(context.Background(), lectureMsg)

	assert.True(t, driven.IsStatus(err, http.StatusBadRequest))
}

func TestPush_UnreachableDoesNotLeakKey(t *testing.T) {
	_, srv := newPushServer(t, http.StatusOK)
	backend := notify.NewServerChanTurbo("SECRETKEY", srv.Client()).WithEndpoint(srv.URL + "/%s.send")
	srv.Close()

	err := backend.Send(context.Background(), lectureMsg)

	var tErr *driven.TransportError
	require.True(t, errors.As(err, &tErr), "expected TransportError, got %T", err)
	assert.NotContains(t, err.Error(), "SECRETKEY")
}

func TestPush_Configured(t *testing.T) {
	assert.False(t, notify.NewServerChanTurbo("", nil).Configured())
	assert.True(t, notify.NewServerChanTurbo("k", nil).Configured())
	assert.False(t, notify.NewServerChan3("", nil).Configured())
}
