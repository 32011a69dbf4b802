// SPDX-License-Identifier: MIT
//
// Package discovery advertises the WebSocket position feed over mDNS and
// browses for feeds published by other hosts.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	applog "playhead/internal/log"
)

// ServiceType is the DNS-SD service the feed is published under.
const ServiceType = "_playhead._tcp"

var log = applog.New("Discovery")

// Config describes the advertised feed.
type Config struct {
	ServiceName string // Instance name, e.g. "studio-a".
	Port        int    // WebSocket port.
	Path        string // WebSocket path, e.g. "/position".
	Version     string // Build version, published for clients.
}

// FeedInfo describes a feed found by Browse.
type FeedInfo struct {
	Name    string
	Host    string
	Port    int
	Path    string
	Version string
}

// URL returns the WebSocket address of the feed.
func (f FeedInfo) URL() string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(f.Host, fmt.Sprint(f.Port)), f.Path)
}

// Advertiser answers mDNS queries until closed.
type Advertiser struct {
	server *mdns.Server
}

// Advertise publishes cfg on every non-loopback IPv4 interface.
func Advertise(cfg Config) (*Advertiser, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("discovery: service name is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("discovery: invalid port %d", cfg.Port)
	}

	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(cfg.ServiceName, ServiceType, "", "", cfg.Port, ips, txtRecords(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Infof("Advertising %s on port %d (type: %s)", cfg.ServiceName, cfg.Port, ServiceType)
	return &Advertiser{server: server}, nil
}

// Close stops answering queries.
func (a *Advertiser) Close() error {
	log.Debugf("Advertisement stopped")
	return a.server.Shutdown()
}

// Browse queries the local network for feeds for up to timeout.
func Browse(timeout time.Duration) ([]FeedInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []FeedInfo)

	go func() {
		var feeds []FeedInfo
		seen := make(map[string]bool)
		for entry := range entries {
			feed := parseEntry(entry)
			key := feed.URL()
			if seen[key] {
				continue
			}
			seen[key] = true
			log.Debugf("Found %s at %s", feed.Name, key)
			feeds = append(feeds, feed)
		}
		done <- feeds
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	feeds := <-done
	if err != nil {
		return feeds, fmt.Errorf("mdns query: %w", err)
	}
	return feeds, nil
}

func txtRecords(cfg Config) []string {
	txt := []string{"path=" + cfg.Path}
	if cfg.Version != "" {
		txt = append(txt, "version="+cfg.Version)
	}
	return txt
}

func parseEntry(entry *mdns.ServiceEntry) FeedInfo {
	feed := FeedInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Port: entry.Port,
	}
	switch {
	case entry.AddrV4 != nil:
		feed.Host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		feed.Host = entry.AddrV6.String()
	default:
		feed.Host = strings.TrimSuffix(entry.Host, ".")
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			feed.Path = value
		case "version":
			feed.Version = value
		}
	}
	return feed
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
