// SPDX-License-Identifier: MIT
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestAdvertiseRejectsBadConfig(t *testing.T) {
	if _, err := Advertise(Config{Port: 8080}); err == nil {
		t.Error("expected error for empty service name")
	}
	if _, err := Advertise(Config{ServiceName: "studio"}); err == nil {
		t.Error("expected error for zero port")
	}
}

func TestTXTRecords(t *testing.T) {
	got := txtRecords(Config{Path: "/position", Version: "0.3.0"})
	if len(got) != 2 || got[0] != "path=/position" || got[1] != "version=0.3.0" {
		t.Errorf("txtRecords() = %v", got)
	}
	if got := txtRecords(Config{Path: "/position"}); len(got) != 1 {
		t.Errorf("txtRecords() without version = %v", got)
	}
}

func TestParseEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "studio-a._playhead._tcp.local.",
		Host:       "studio-a.local.",
		AddrV4:     net.IPv4(192, 168, 1, 20),
		Port:       8080,
		InfoFields: []string{"path=/position", "version=0.3.0", "junk"},
	}

	feed := parseEntry(entry)
	want := FeedInfo{Name: "studio-a", Host: "192.168.1.20", Port: 8080, Path: "/position", Version: "0.3.0"}
	if feed != want {
		t.Errorf("parseEntry() = %+v, want %+v", feed, want)
	}
	if feed.URL() != "ws://192.168.1.20:8080/position" {
		t.Errorf("URL() = %s", feed.URL())
	}
}

func TestParseEntryHostFallback(t *testing.T) {
	feed := parseEntry(&mdns.ServiceEntry{Name: "x", Host: "box.local.", Port: 1})
	if feed.Host != "box.local" {
		t.Errorf("Host = %q", feed.Host)
	}
	v6 := parseEntry(&mdns.ServiceEntry{Name: "y", AddrV6: net.ParseIP("fe80::1"), Port: 2, InfoFields: []string{"path=/p"}})
	if v6.URL() != "ws://[fe80::1]:2/p" {
		t.Errorf("URL() = %s", v6.URL())
	}
}
