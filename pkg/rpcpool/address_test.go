package rpcpool

import "testing"

func TestAddressString(t *testing.T) {
	cases := []struct {
		addr Address
		want string
	}{
		{Address{Scheme: "dns", Host: "peer-1", Port: 6334}, "dns://peer-1:6334"},
		{Address{Host: "peer-1", Port: 6334}, "peer-1:6334"},
		{Address{Scheme: "unix", Host: "/tmp/peer.sock"}, "unix:///tmp/peer.sock"},
	}
	for _, c := range cases {
		if got := c.addr.String(); got != c.want {
			t.Errorf("Address{%+v}.String() = %q, want %q", c.addr, got, c.want)
		}
	}
}

func TestAddressTarget(t *testing.T) {
	cases := []struct {
		addr Address
		want string
	}{
		{Address{Host: "peer-1", Port: 6334}, "peer-1:6334"},
		{Address{Scheme: "unix", Host: "/tmp/peer.sock"}, "unix:/tmp/peer.sock"},
	}
	for _, c := range cases {
		if got := c.addr.Target(); got != c.want {
			t.Errorf("Address{%+v}.Target() = %q, want %q", c.addr, got, c.want)
		}
	}
}

func TestAddressComparable(t *testing.T) {
	m := map[Address]int{}
	a := Address{Host: "peer-1", Port: 6334}
	b := Address{Host: "peer-1", Port: 6334}
	m[a] = 1
	m[b] = 2
	if len(m) != 1 {
		t.Fatalf("expected equal Address values to collide as map keys, got %d entries", len(m))
	}
}
