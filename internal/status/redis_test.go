package status

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	ctx := context.Background()

	rs, err := NewRedisStore(ctx, mr.Addr(), "")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer func() { _ = rs.Close() }()
	if st := rs.Load(); st.Phase != PhaseStarting || !st.Idle {
		t.Fatalf("initial state = %+v", st)
	}

	ind := NewIndicator(rs)
	ind.SetIdle(false)
	ind.SignalDisconnect()

	// a second host sees the persisted state
	rs2, err := NewRedisStore(ctx, mr.Addr(), DefaultRedisKey)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer func() { _ = rs2.Close() }()
	if st := rs2.Load(); st.Phase != PhaseDisconnected || st.Disconnects != 1 {
		t.Fatalf("persisted state = %+v", st)
	}

	mr.Set(DefaultRedisKey, "{not json")
	if st := rs.Load(); st.Phase != PhaseError {
		t.Fatalf("corrupt state = %+v; want error phase", st)
	}
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisStore(context.Background(), addr, ""); err == nil {
		t.Fatalf("NewRedisStore succeeded against a closed server")
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		url    string
		addrs  int
		master string
		db     int
		tls    bool
	}{
		{"localhost:6379", 1, "", 0, false},
		{"redis://:pass@localhost:6379/1", 1, "", 1, false},
		{"rediss://host1:6379,host2:6379?db=3", 2, "", 3, true},
		{"redis-sentinel://localhost:26379/mymaster?db=2", 1, "mymaster", 2, false},
	}
	for _, tt := range tests {
		opts, err := parseRedisURL(tt.url)
		if err != nil {
			t.Fatalf("parseRedisURL(%q): %v", tt.url, err)
		}
		if len(opts.Addrs) != tt.addrs {
			t.Fatalf("%q addrs = %d; want %d", tt.url, len(opts.Addrs), tt.addrs)
		}
		if opts.MasterName != tt.master {
			t.Fatalf("%q master = %q; want %q", tt.url, opts.MasterName, tt.master)
		}
		if opts.DB != tt.db {
			t.Fatalf("%q db = %d; want %d", tt.url, opts.DB, tt.db)
		}
		if (opts.TLSConfig != nil) != tt.tls {
			t.Fatalf("%q tls = %v; want %v", tt.url, opts.TLSConfig != nil, tt.tls)
		}
	}
	for _, bad := range []string{"http://localhost", "redis://localhost/abc"} {
		if _, err := parseRedisURL(bad); err == nil {
			t.Fatalf("parseRedisURL(%q) succeeded", bad)
		}
	}
}
