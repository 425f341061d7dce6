package transport

import (
	"context"
	"github.com/jd3nn1s/shiftlights/loop"
	"github.com/jd3nn1s/shiftlights/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"sync"
	"testing"
	"time"
)

func shortWatchdog(interval, silence time.Duration) func() {
	origInterval, origSilence := watchdogInterval, silenceTimeout
	watchdogInterval, silenceTimeout = interval, silence
	return func() {
		watchdogInterval, silenceTimeout = origInterval, origSilence
	}
}

func startLoop(t *testing.T) (*loop.Loop, func()) {
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		_ = l.Run(ctx)
		wg.Done()
	}()
	return l, func() {
		cancel()
		wg.Wait()
	}
}

func listenPeer(t *testing.T) *net.UDPConn {
	pc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return pc
}

func readFrom(t *testing.T, pc *net.UDPConn) ([]byte, *net.UDPAddr) {
	buf := make([]byte, 1024)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, addr, err := pc.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n], addr
}

func newTestSession(l *loop.Loop, cfg Config, cb Callbacks) (*Session, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	return NewSession(cfg, l, m, cb), m
}

func TestSessionSendReceive(t *testing.T) {
	l, stop := startLoop(t)
	defer stop()
	peer := listenPeer(t)
	defer peer.Close()

	received := make(chan []byte, 1)
	s, m := newTestSession(l, Config{
		Host: "127.0.0.1",
		Port: peer.LocalAddr().(*net.UDPAddr).Port,
	}, Callbacks{
		Datagram: func(data []byte) {
			received <- data
		},
	})

	l.Do(func() {
		assert.NoError(t, s.Connect())
		assert.True(t, s.Connected())
		assert.NoError(t, s.Send([]byte("hello")))
	})

	data, from := readFrom(t, peer)
	assert.Equal(t, []byte("hello"), data)

	_, err := peer.WriteToUDP([]byte("world"), from)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), <-received)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DatagramsReceived.WithLabelValues("test")))

	l.Do(func() {
		s.Disconnect()
		assert.False(t, s.Connected())
		// idempotent
		s.Disconnect()
		assert.Error(t, s.Send([]byte("late")))
	})
}

func TestSessionBoundLocalPort(t *testing.T) {
	l, stop := startLoop(t)
	defer stop()

	// find a free port to bind to
	probe := listenPeer(t)
	port := probe.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, probe.Close())

	received := make(chan []byte, 1)
	s, _ := newTestSession(l, Config{
		Host:      "127.0.0.1",
		Port:      port,
		LocalPort: port,
	}, Callbacks{
		Datagram: func(data []byte) {
			received <- data
		},
	})
	l.Do(func() {
		assert.NoError(t, s.Connect())
		assert.Equal(t, port, s.LocalAddr().Port)
	})
	defer l.Do(s.Disconnect)

	pusher, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer pusher.Close()
	_, err = pusher.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, <-received)
}

func TestWatchdogCallsStale(t *testing.T) {
	defer shortWatchdog(10*time.Millisecond, 10*time.Millisecond)()
	l, stop := startLoop(t)
	defer stop()
	peer := listenPeer(t)
	defer peer.Close()

	stale := make(chan struct{}, 10)
	s, m := newTestSession(l, Config{
		Host: "127.0.0.1",
		Port: peer.LocalAddr().(*net.UDPAddr).Port,
	}, Callbacks{
		Stale: func() {
			stale <- struct{}{}
		},
	})
	l.Do(func() {
		assert.NoError(t, s.Connect())
	})
	select {
	case <-stale:
	case <-time.After(time.Second):
		assert.Fail(t, "watchdog did not fire")
	}
	l.Do(s.Disconnect)
	assert.True(t, testutil.ToFloat64(m.Reconnects.WithLabelValues("test")) >= 1)
}

func TestWatchdogDefaultReconnect(t *testing.T) {
	defer shortWatchdog(10*time.Millisecond, 10*time.Millisecond)()
	l, stop := startLoop(t)
	defer stop()
	peer := listenPeer(t)
	defer peer.Close()

	s, m := newTestSession(l, Config{
		Host: "127.0.0.1",
		Port: peer.LocalAddr().(*net.UDPAddr).Port,
	}, Callbacks{})

	var firstID string
	l.Do(func() {
		assert.NoError(t, s.Connect())
		firstID = s.id.String()
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(m.Reconnects.WithLabelValues("test")) >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	l.Do(func() {
		assert.True(t, s.Connected())
		assert.NotEqual(t, firstID, s.id.String(), "expected a fresh endpoint")
		s.Disconnect()
	})
}

func TestWatchdogQuietWhileDataFlows(t *testing.T) {
	defer shortWatchdog(20*time.Millisecond, 100*time.Millisecond)()
	l, stop := startLoop(t)
	defer stop()

	probe := listenPeer(t)
	port := probe.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, probe.Close())

	stale := make(chan struct{}, 10)
	s, _ := newTestSession(l, Config{
		Host:      "127.0.0.1",
		Port:      port,
		LocalPort: port,
	}, Callbacks{
		Stale: func() {
			stale <- struct{}{}
		},
	})
	l.Do(func() {
		assert.NoError(t, s.Connect())
	})

	pusher, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer pusher.Close()
	for i := 0; i < 30; i++ {
		_, err = pusher.Write([]byte{byte(i)})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	l.Do(s.Disconnect)
	assert.Equal(t, 0, len(stale), "watchdog fired while data was flowing")
}

func TestDisconnectStopsWatchdog(t *testing.T) {
	defer shortWatchdog(5*time.Millisecond, 5*time.Millisecond)()
	l, stop := startLoop(t)
	defer stop()
	peer := listenPeer(t)
	defer peer.Close()

	stale := make(chan struct{}, 100)
	s, _ := newTestSession(l, Config{
		Host: "127.0.0.1",
		Port: peer.LocalAddr().(*net.UDPAddr).Port,
	}, Callbacks{
		Stale: func() {
			stale <- struct{}{}
		},
	})
	l.Do(func() {
		assert.NoError(t, s.Connect())
		s.Disconnect()
	})
	time.Sleep(30 * time.Millisecond)
	l.Do(func() {})
	assert.Equal(t, 0, len(stale))
}

func TestSendFailureClosesEndpoint(t *testing.T) {
	l, stop := startLoop(t)
	defer stop()

	peer := listenPeer(t)
	defer peer.Close()

	s, m := newTestSession(l, Config{
		Host: "127.0.0.1",
		Port: peer.LocalAddr().(*net.UDPAddr).Port,
	}, Callbacks{})
	l.Do(func() {
		assert.NoError(t, s.Connect())
		// pull the socket out from under the session so the write fails
		assert.NoError(t, s.conn.Close())
		assert.Error(t, s.Send([]byte{0}))
		assert.False(t, s.Connected())
		assert.NotNil(t, s.watchdog, "watchdog should keep running to reconnect")
		s.Disconnect()
		assert.Nil(t, s.watchdog)
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SendErrors.WithLabelValues("test")))
}

func TestStaleGenerationDropped(t *testing.T) {
	l, stop := startLoop(t)
	defer stop()
	peer := listenPeer(t)
	defer peer.Close()

	count := 0
	s, _ := newTestSession(l, Config{
		Host: "127.0.0.1",
		Port: peer.LocalAddr().(*net.UDPAddr).Port,
	}, Callbacks{
		Datagram: func([]byte) {
			count++
		},
	})
	l.Do(func() {
		assert.NoError(t, s.Connect())
		old := s.generation
		s.deliver(old, []byte{1})
		assert.Equal(t, 1, count)

		assert.NoError(t, s.Connect())
		s.deliver(old, []byte{1})
		assert.Equal(t, 1, count, "datagram from a torn down endpoint was delivered")
		s.Disconnect()
	})
}
