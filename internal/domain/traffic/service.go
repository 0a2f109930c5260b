// Package traffic holds the entities of the traffic lifecycle engine: the
// caller-supplied Service, its normalized form, and the ProxyDetail shape
// sent to the tunnel master. Nothing here talks to the KV store or the
// master; that is the job of the application and infrastructure layers.
package traffic

import "fmt"

// Protocol is the workload-side transport a port is forwarded over.
type Protocol string

const (
	ProtocolTCP  Protocol = "TCP"
	ProtocolUDP  Protocol = "UDP"
	ProtocolSTCP Protocol = "STCP"
)

// AppProtocol is the application-layer hint a caller attaches to a port.
type AppProtocol string

const (
	AppProtocolRaw  AppProtocol = "raw"
	AppProtocolHTTP AppProtocol = "http"
)

// ServiceType is the concrete tunnel proxy type a port normalizes to.
type ServiceType string

const (
	ServiceTypeHTTP ServiceType = "http"
	ServiceTypeTCP  ServiceType = "tcp"
	ServiceTypeUDP  ServiceType = "udp"
)

// Port is one caller-declared port within a Service.
type Port struct {
	Name        string      `json:"name" binding:"required"`
	NodePort    int         `json:"node_port" binding:"required"`
	ServiceType ServiceType `json:"service_type,omitempty" binding:"omitempty,oneof=http tcp udp"`
	Protocol    Protocol    `json:"protocol" binding:"required,oneof=TCP UDP STCP"`
	AppProtocol AppProtocol `json:"app_protocol" binding:"required,oneof=raw http"`
}

// Service is the input record describing one traffic's desired ports.
type Service struct {
	Traffic   string `json:"traffic" binding:"required"`
	CreatedAt int64  `json:"created_at" binding:"required"`
	Lifetime  int64  `json:"lifetime" binding:"required"`
	Ports     []Port `json:"ports" binding:"required,dive"`
}

// ExpireAt returns SVC_EXPIRE_AT = created_at + lifetime, in unix seconds.
func (s *Service) ExpireAt() int64 {
	return s.CreatedAt + s.Lifetime
}

// TTLSeconds returns max(0, SVC_EXPIRE_AT - now), recomputed fresh at the
// instant of each write rather than cached from an earlier one.
func (s *Service) TTLSeconds(now int64) int64 {
	return ttlFromExpireAt(s.ExpireAt(), now)
}

func ttlFromExpireAt(expireAt, now int64) int64 {
	d := expireAt - now
	if d < 0 {
		return 0
	}
	return d
}

// NormalizedPort is a Port after the normalization rule has resolved its
// ServiceType: http wins whenever AppProtocol is http, otherwise udp or
// tcp follow Protocol.
type NormalizedPort struct {
	Name        string
	NodePort    int
	ServiceType ServiceType
}

// NormalizedService is a Service after normalization: every port carries a
// concrete ServiceType.
type NormalizedService struct {
	Traffic   string
	CreatedAt int64
	Lifetime  int64
	Ports     []NormalizedPort
}

// ExpireAt returns SVC_EXPIRE_AT for the normalized service.
func (s *NormalizedService) ExpireAt() int64 {
	return s.CreatedAt + s.Lifetime
}

// TTLSeconds returns max(0, SVC_EXPIRE_AT - now).
func (s *NormalizedService) TTLSeconds(now int64) int64 {
	return ttlFromExpireAt(s.ExpireAt(), now)
}

// resolveServiceType is the normalization total function: app_protocol
// dominates protocol, and every port resolves to exactly one ServiceType.
func resolveServiceType(p Port) ServiceType {
	if p.AppProtocol == AppProtocolHTTP {
		return ServiceTypeHTTP
	}
	if p.Protocol == ProtocolUDP {
		return ServiceTypeUDP
	}
	return ServiceTypeTCP
}

// Normalize applies the normalization rule to every port of s, producing
// a NormalizedService whose ports each carry a concrete ServiceType.
func Normalize(s *Service) *NormalizedService {
	ports := make([]NormalizedPort, 0, len(s.Ports))
	for _, p := range s.Ports {
		ports = append(ports, NormalizedPort{
			Name:        p.Name,
			NodePort:    p.NodePort,
			ServiceType: resolveServiceType(p),
		})
	}
	return &NormalizedService{
		Traffic:   s.Traffic,
		CreatedAt: s.CreatedAt,
		Lifetime:  s.Lifetime,
		Ports:     ports,
	}
}

// NonHTTPCount returns the number of ports that normalized to tcp or udp
// (those that need a remote port allocated on the tunnel server).
func (s *NormalizedService) NonHTTPCount() int {
	n := 0
	for _, p := range s.Ports {
		if p.ServiceType != ServiceTypeHTTP {
			n++
		}
	}
	return n
}

// PortKey is the stable map key a proxy's public address is returned
// under: "{name}:{node_port}/{service_type}".
func (p NormalizedPort) PortKey() string {
	return fmt.Sprintf("%s:%d/%s", p.Name, p.NodePort, p.ServiceType)
}
