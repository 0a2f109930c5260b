package traffic

// ProxyDetail is one proxy rule to be created on the tunnel master.
// Subdomain is set iff Type is http; RemotePort is set iff Type is tcp or
// udp.
type ProxyDetail struct {
	Name       string
	Type       ServiceType
	LocalPort  int
	LocalIP    string
	Subdomain  string
	RemotePort int
}

// IsHTTP reports whether this proxy is an http proxy (subdomain-routed,
// no remote port).
func (p ProxyDetail) IsHTTP() bool {
	return p.Type == ServiceTypeHTTP
}
