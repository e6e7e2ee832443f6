package ldap

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// SRVDiscovery handles DNS SRV record discovery for domain controllers.
type SRVDiscovery struct {
	log      Logger
	resolver *net.Resolver
}

// NewSRVDiscovery creates a new SRV discovery instance.
func NewSRVDiscovery(log Logger) *SRVDiscovery {
	if log == nil {
		log = NopLogger{}
	}
	return &SRVDiscovery{
		log:      log,
		resolver: net.DefaultResolver,
	}
}

// DiscoverServers discovers LDAP servers for a domain using SRV records.
// Discovery priority:
// 1. _ldaps._tcp.<domain> (LDAPS - preferred)
// 2. _ldap._tcp.<domain> (LDAP+StartTLS - fallback)
// 3. _gc._tcp.<domain> (Global Catalog - last resort).
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]*ServerInfo, error) {
	start := time.Now()

	if domain == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}

	var allServers []*ServerInfo

	srvRecords := []struct {
		service string
		useTLS  bool
	}{
		{"_ldaps._tcp." + domain, true},
		{"_ldap._tcp." + domain, false},
		{"_gc._tcp." + domain, false},
	}

	for _, record := range srvRecords {
		servers, err := d.lookupSRV(ctx, record.service, record.useTLS)
		if err != nil {
			d.log.Debug("SRV lookup failed, continuing to next service", map[string]any{
				"service": record.service,
				"error":   err.Error(),
			})
			continue
		}
		allServers = append(allServers, servers...)

		// If we found LDAPS servers, prefer them and don't look further
		if record.useTLS && len(servers) > 0 {
			break
		}
	}

	if len(allServers) == 0 {
		d.log.Debug("No SRV records found, using fallback servers", map[string]any{
			"domain":   domain,
			"duration": time.Since(start).String(),
		})
		return d.createFallbackServers(domain), nil
	}

	d.sortServersByPriority(allServers)

	d.log.Debug("Server discovery completed", map[string]any{
		"domain":       domain,
		"server_count": len(allServers),
		"duration":     time.Since(start).String(),
	})
	return allServers, nil
}

// lookupSRV performs SRV record lookup for a specific service.
func (d *SRVDiscovery) lookupSRV(ctx context.Context, service string, useTLS bool) ([]*ServerInfo, error) {
	_, srvRecords, err := d.resolver.LookupSRV(ctx, "", "", service)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup for %s failed: %w", service, err)
	}

	servers := make([]*ServerInfo, 0, len(srvRecords))
	for _, srv := range srvRecords {
		servers = append(servers, &ServerInfo{
			Host:     strings.TrimSuffix(srv.Target, "."),
			Port:     int(srv.Port),
			UseTLS:   useTLS,
			Priority: int(srv.Priority),
			Weight:   int(srv.Weight),
			Source:   "srv",
		})
	}

	return servers, nil
}

// sortServersByPriority orders servers by SRV priority, then by weight.
// Lower priority values are preferred; higher weights within a priority
// come first.
func (d *SRVDiscovery) sortServersByPriority(servers []*ServerInfo) {
	sort.SliceStable(servers, func(i, j int) bool {
		if servers[i].Priority != servers[j].Priority {
			return servers[i].Priority < servers[j].Priority
		}
		return servers[i].Weight > servers[j].Weight
	})
}

// createFallbackServers builds a standard-port server list for the domain
// when SRV discovery yields nothing.
func (d *SRVDiscovery) createFallbackServers(domain string) []*ServerInfo {
	return []*ServerInfo{
		{Host: domain, Port: 636, UseTLS: true, Source: "fallback"},
		{Host: domain, Port: 389, UseTLS: false, Source: "fallback"},
	}
}
