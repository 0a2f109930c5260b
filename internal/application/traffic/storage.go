package traffic

import (
	"encoding/json"
	"fmt"

	"tunnelctl/internal/infrastructure/kv"
)

// proxyDetailRecord is the KV-internal JSON shape of a ProxyDetail. It is
// snake_case because it never crosses the wire to the tunnel master or to
// callers — only master.ProxyDetailWire (lowerCamelCase) and the HTTP
// handlers' own shapes do that.
type proxyDetailRecord struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	LocalPort  int    `json:"local_port"`
	LocalIP    string `json:"local_ip,omitempty"`
	Subdomain  string `json:"subdomain,omitempty"`
	RemotePort int    `json:"remote_port,omitempty"`
}

type configRecord struct {
	Proxies []proxyDetailRecord `json:"proxies"`
}

// confRecord is the value stored at traffic:{traffic_id}:conf.
type confRecord struct {
	ClientID string       `json:"client_id"`
	ServerID string       `json:"server_id"`
	Config   configRecord `json:"config"`
}

// addrRecord is the value stored at traffic:{traffic_id}:addr.
type addrRecord struct {
	RemotePorts []int             `json:"remote_ports"`
	RemoteAddr  map[string]string `json:"remote_addr"`
}

// workingEntry is one element of the JSON array stored at
// working:{traffic_id}.
type workingEntry struct {
	ClientID string `json:"client_id"`
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
}

func confKey(trafficID string) string {
	return kv.NewKey("traffic", trafficID, "conf").String()
}

func addrKey(trafficID string) string {
	return kv.NewKey("traffic", trafficID, "addr").String()
}

func workingKey(trafficID string) string {
	return kv.NewKey("working", trafficID).String()
}

func portKey(serverID string, port int) string {
	return kv.NewKey("port", serverID, fmt.Sprintf("%d", port)).String()
}

func marshalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %T: %w", v, err)
	}
	return string(raw), nil
}

func unmarshalJSON(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}
