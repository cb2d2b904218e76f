package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/broadcast"
	"github.com/pscheid92/imupulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts broadcast.Options) (*broadcast.Broadcaster, string) {
	t.Helper()
	clock := clockwork.NewRealClock()
	b := broadcast.NewBroadcaster(clock, opts)
	srv := httptest.NewServer(NewHandler(b, clock, NewCheckOrigin("", true)))
	t.Cleanup(func() {
		srv.Close()
		b.Stop()
	})
	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandler_StreamsReadingsAsJSON(t *testing.T) {
	b, url := newTestServer(t, broadcast.Options{})
	conn := dial(t, url)

	require.Eventually(t, func() bool { return b.Count() == 1 }, time.Second, 5*time.Millisecond)

	observed := time.UnixMilli(1_700_000_000_000)
	b.Publish(domain.Reading{Ax: 1, Ay: 2, Az: 3, Raw: "1,2,3", ObservedAt: observed})
	b.Publish(domain.Reading{Ax: 4, Ay: 5, Az: 6, Raw: "4,5,6", ObservedAt: observed})

	for _, want := range []float64{1, 4} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		msgType, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, msgType)

		var got domain.Reading
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, want, got.Ax)
		assert.Equal(t, observed.UnixMilli(), got.ObservedAt.UnixMilli())
	}
}

func TestHandler_ClientCloseUnsubscribes(t *testing.T) {
	b, url := newTestServer(t, broadcast.Options{})
	conn := dial(t, url)

	require.Eventually(t, func() bool { return b.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return b.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandler_RejectsOverLimit(t *testing.T) {
	b, url := newTestServer(t, broadcast.Options{MaxSubscribers: 1})
	dial(t, url)
	require.Eventually(t, func() bool { return b.Count() == 1 }, time.Second, 5*time.Millisecond)

	second := dial(t, url)
	_ = second.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := second.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)
	assert.Equal(t, 1, b.Count())
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	clock := clockwork.NewRealClock()
	b := broadcast.NewBroadcaster(clock, broadcast.Options{})
	t.Cleanup(b.Stop)
	srv := httptest.NewServer(NewHandler(b, clock, NewCheckOrigin("https://imu.example.com", false)))
	t.Cleanup(srv.Close)

	header := map[string][]string{"Origin": {"https://evil.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, 0, b.Count())
}
