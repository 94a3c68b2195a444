package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	b := NewBroker(logrus.NewEntry(l))
	b.now = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return b
}

func waitForClients(t *testing.T, b *Broker, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestBrokerSSE(t *testing.T) {
	b := newTestBroker(t)
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	waitForClients(t, b, 1)
	b.Broadcast("prediction", map[string]string{"keyword": "dentist near me"})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &msg))
	assert.Equal(t, "prediction", msg.Event)
	assert.JSONEq(t, `{"keyword":"dentist near me"}`, string(msg.Payload))
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), msg.Timestamp)

	cancel()
	waitForClients(t, b, 0)
}

func TestBrokerWebSocket(t *testing.T) {
	b := newTestBroker(t)
	srv := httptest.NewServer(http.HandlerFunc(b.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	waitForClients(t, b, 1)
	b.Broadcast("trend", map[string]string{"id": "t-1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "trend", msg.Event)
	assert.JSONEq(t, `{"id":"t-1"}`, string(msg.Payload))

	require.NoError(t, conn.Close())
	waitForClients(t, b, 0)
}

func TestBrokerDropsUnencodablePayload(t *testing.T) {
	b := newTestBroker(t)
	b.Broadcast("prediction", make(chan int))
	assert.Empty(t, b.broadcast)
}

func TestBrokerStopClosesClients(t *testing.T) {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	b := NewBroker(logrus.NewEntry(l))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(stopped)
	}()

	ch, ok := b.subscribe(context.Background(), TransportSSE)
	require.True(t, ok)
	cancel()
	<-stopped

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.ClientCount())
}
