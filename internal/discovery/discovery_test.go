package discovery

import (
	"errors"
	"math"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestServerInfoText(t *testing.T) {
	is := is.New(t)

	original := ServerInfo{
		Name:           "friday night",
		HostUsername:   "alice",
		ReliablePort:   54555,
		UnreliablePort: 54556,
		PlayerCount:    3,
	}

	text, err := original.MarshalText()
	is.NoErr(err)
	is.Equal(string(text), "friday night\nalice\n54555\n54556\n3\n")

	decoded := ServerInfo{}
	is.NoErr(decoded.UnmarshalText(text))
	is.Equal(decoded, original)
}

func TestServerInfoMalformed(t *testing.T) {
	testCases := map[string]string{
		"empty":          "",
		"too few fields": "name\nhost\n1\n",
		"too many":       "name\nhost\n1\n2\n3\n4\n",
		"bad port":       "name\nhost\nabc\n2\n3\n",
		"port range":     "name\nhost\n70000\n2\n3\n",
		"negative count": "name\nhost\n1\n2\n-3\n",
		"binary garbage": "\x00\x01\x02",
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			err := (&ServerInfo{}).UnmarshalText([]byte(tc))
			is.True(errors.Is(err, ErrMalformed))
		})
	}

	t.Run("multiline name", func(t *testing.T) {
		is := is.New(t)
		_, err := (&ServerInfo{Name: "a\nb", ReliablePort: 1, UnreliablePort: 2}).MarshalText()
		is.True(errors.Is(err, ErrMalformed))
	})

	t.Run("name too long", func(t *testing.T) {
		is := is.New(t)
		_, err := (&ServerInfo{Name: strings.Repeat("n", MaxNameLength+1), ReliablePort: 1, UnreliablePort: 2}).MarshalText()
		is.True(errors.Is(err, ErrMalformed))
	})
}

func TestLongestServerInfoFitsListener(t *testing.T) {
	is := is.New(t)

	info := ServerInfo{
		Name:           strings.Repeat("n", MaxNameLength),
		HostUsername:   strings.Repeat("h", MaxNameLength),
		ReliablePort:   65535,
		UnreliablePort: 65535,
		PlayerCount:    math.MaxInt,
	}
	text, err := info.MarshalText()
	is.NoErr(err)
	is.True(len(text) <= maxServerInfoSize)

	l, _ := newTestListener()
	l.handleDatagram(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 1234}, text)
	servers := l.Servers()
	is.Equal(len(servers), 1)
	is.Equal(servers[0].Name, info.Name)
	is.Equal(servers[0].HostUsername, info.HostUsername)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestListener() (*Listener, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewListener(DefaultConfig(), nil)
	l.now = clock.now
	return l, clock
}

func announce(t *testing.T, l *Listener, ip string, info ServerInfo) {
	t.Helper()
	text, err := info.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	l.handleDatagram(&net.UDPAddr{IP: net.ParseIP(ip), Port: 40000}, text)
}

func TestStaleness(t *testing.T) {
	is := is.New(t)

	l, clock := newTestListener()
	info := ServerInfo{Name: "a", HostUsername: "alice", ReliablePort: 1000, UnreliablePort: 1001, PlayerCount: 1}

	announce(t, l, "10.0.0.2", info)
	is.Equal(len(l.Servers()), 1)

	// refreshed within the window: still present, count updated
	clock.advance(8 * time.Second)
	info.PlayerCount = 2
	announce(t, l, "10.0.0.2", info)

	clock.advance(8 * time.Second)
	servers := l.Servers()
	is.Equal(len(servers), 1)
	is.Equal(servers[0].PlayerCount, 2)
	is.Equal(servers[0].LastSeen, clock.t.Add(-8*time.Second))

	// not refreshed for more than 10s: gone on the next read, no eviction
	// pass needed
	clock.advance(2*time.Second + time.Millisecond)
	is.Equal(len(l.Servers()), 0)

	// a late broadcast brings it back
	announce(t, l, "10.0.0.2", info)
	is.Equal(len(l.Servers()), 1)
}

func TestRecordsKeyedByAddressAndPort(t *testing.T) {
	is := is.New(t)

	l, _ := newTestListener()

	announce(t, l, "10.0.0.2", ServerInfo{Name: "b", ReliablePort: 1000, UnreliablePort: 1001})
	announce(t, l, "10.0.0.2", ServerInfo{Name: "a", ReliablePort: 2000, UnreliablePort: 2001})
	announce(t, l, "10.0.0.3", ServerInfo{Name: "c", ReliablePort: 1000, UnreliablePort: 1001})
	// refresh never renames
	announce(t, l, "10.0.0.3", ServerInfo{Name: "renamed", ReliablePort: 1000, UnreliablePort: 1001, PlayerCount: 4})

	servers := l.Servers()
	is.Equal(len(servers), 3)
	is.Equal(servers[0].Name, "a")
	is.Equal(servers[1].Name, "b")
	is.Equal(servers[2].Name, "c")
	is.Equal(servers[2].PlayerCount, 4)
	is.Equal(servers[2].ReliableAddress(), "10.0.0.3:1000")
}

func TestMalformedPayloadSkipped(t *testing.T) {
	is := is.New(t)

	l, _ := newTestListener()
	l.handleDatagram(&net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 1}, []byte("garbage"))
	is.Equal(len(l.Servers()), 0)
}

func TestSubscribe(t *testing.T) {
	is := is.New(t)

	l, _ := newTestListener()

	var order []string
	unsubscribeFirst := l.Subscribe(func(s Server) { order = append(order, "first:"+s.Name) })
	l.Subscribe(func(s Server) { order = append(order, "second:"+s.Name) })

	info := ServerInfo{Name: "a", ReliablePort: 1000, UnreliablePort: 1001}
	announce(t, l, "10.0.0.2", info)
	// refreshes are not discoveries
	announce(t, l, "10.0.0.2", info)

	is.Equal(order, []string{"first:a", "second:a"})

	unsubscribeFirst()
	announce(t, l, "10.0.0.3", info)
	is.Equal(order, []string{"first:a", "second:a", "second:a"})
}

func TestStopClearsRecords(t *testing.T) {
	is := is.New(t)

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	l := NewListener(cfg, nil)
	is.NoErr(l.Start())

	announce(t, l, "10.0.0.2", ServerInfo{Name: "a", ReliablePort: 1000, UnreliablePort: 1001})
	is.Equal(len(l.Servers()), 1)

	l.Stop()
	is.Equal(len(l.Servers()), 0)
}

func TestBroadcastToListener(t *testing.T) {
	is := is.New(t)

	listenerCfg := DefaultConfig()
	listenerCfg.ListenAddr = "127.0.0.1:0"
	listenerCfg.ReadTimeout = 50 * time.Millisecond
	l := NewListener(listenerCfg, nil)
	is.NoErr(l.Start())
	defer l.Stop()

	discovered := make(chan Server, 1)
	l.Subscribe(func(s Server) { discovered <- s })

	playerCount := atomic.Int64{}
	playerCount.Store(1)

	broadcasterCfg := DefaultConfig()
	broadcasterCfg.BroadcastInterval = 50 * time.Millisecond
	broadcasterCfg.Targets = []string{l.Addr().String()}
	b := NewBroadcaster(
		broadcasterCfg,
		ServerInfo{Name: "lan party", HostUsername: "alice", ReliablePort: 54555, UnreliablePort: 54556},
		func() int { return int(playerCount.Load()) },
		nil,
	)
	b.Start()
	defer b.Stop()

	select {
	case s := <-discovered:
		is.Equal(s.Name, "lan party")
		is.Equal(s.HostUsername, "alice")
		is.Equal(s.Addr, "127.0.0.1")
		is.Equal(s.ReliablePort, 54555)
		is.Equal(s.UnreliablePort, 54556)
		is.Equal(s.PlayerCount, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("server was not discovered")
	}

	playerCount.Store(3)
	deadline := time.Now().Add(2 * time.Second)
	for {
		servers := l.Servers()
		if len(servers) == 1 && servers[0].PlayerCount == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("player count was not refreshed: %+v", servers)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDirectedBroadcast(t *testing.T) {
	is := is.New(t)

	_, ipNet, err := net.ParseCIDR("192.168.1.17/24")
	is.NoErr(err)
	ipNet.IP = net.ParseIP("192.168.1.17")
	is.Equal(directedBroadcast(ipNet).String(), "192.168.1.255")

	_, ipNet, err = net.ParseCIDR("10.1.0.0/16")
	is.NoErr(err)
	is.Equal(directedBroadcast(ipNet).String(), "10.1.255.255")

	_, ipNet, err = net.ParseCIDR("fe80::/64")
	is.NoErr(err)
	is.True(directedBroadcast(ipNet) == nil)
}
