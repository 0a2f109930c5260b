package master

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"tunnelctl/internal/domain/traffic"
)

// toWire converts a domain ProxyDetail into its wire shape.
func toWire(p traffic.ProxyDetail) ProxyDetailWire {
	return ProxyDetailWire{
		Name:       p.Name,
		Type:       string(p.Type),
		LocalPort:  p.LocalPort,
		LocalIP:    p.LocalIP,
		Subdomain:  p.Subdomain,
		RemotePort: p.RemotePort,
	}
}

// EncodeProxyConfig builds the base64(JSON(...)) string the tunnel master
// expects in CreateProxyConfigRequest.Config. The base64 envelope wraps
// the JSON payload exactly as documented — it is not flattened away even
// though the request body around it is itself JSON.
func EncodeProxyConfig(details []traffic.ProxyDetail) (string, error) {
	wire := make([]ProxyDetailWire, 0, len(details))
	for _, d := range details {
		wire = append(wire, toWire(d))
	}
	payload := ProxyConfigPayload{Proxies: wire}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal proxy config: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
