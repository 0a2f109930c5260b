package traffic

import (
	"fmt"
	"strings"
)

// proxyNamePrefix is the fixed, literal prefix every proxy name generated
// by this engine carries. It is not a configuration value: the tunnel
// master groups and filters proxies by it.
const proxyNamePrefix = "ret2shell"

// ClientID builds the tunnel-master client id for a node:
// "{master_user}.c.{node_name}".
func ClientID(masterUser, nodeName string) string {
	return fmt.Sprintf("%s.c.%s", masterUser, nodeName)
}

// ServerIDPrefix is the prefix every acceptable tunnel server id must
// carry: "{master_user}.s.".
func ServerIDPrefix(masterUser string) string {
	return fmt.Sprintf("%s.s.", masterUser)
}

// ServerID builds the tunnel-master server id for a node:
// "{master_user}.s.{node_name}".
func ServerID(masterUser, nodeName string) string {
	return fmt.Sprintf("%s.s.%s", masterUser, nodeName)
}

// ProxyName builds the proxy name a created proxy is registered under:
// "ret2shell:{traffic_id}:{port_name}:{node_port}/{service_type}". The
// last two colon-separated segments of this name are the port key.
func ProxyName(trafficID string, p NormalizedPort) string {
	return fmt.Sprintf("%s:%s:%s", proxyNamePrefix, trafficID, p.PortKey())
}

// ProxyNamePrefix builds the prefix used to list every proxy belonging to
// a traffic id: "ret2shell:{traffic_id}:".
func ProxyNamePrefix(trafficID string) string {
	return fmt.Sprintf("%s:%s:", proxyNamePrefix, trafficID)
}

// LastTwoColonSegments returns the last two ":"-separated segments of s,
// joined back with ":". This recovers the port key from a proxy name even
// when the name_prefix itself contains colons.
func LastTwoColonSegments(s string) string {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return s
	}
	return strings.Join(parts[len(parts)-2:], ":")
}

// PortKeyFromProxyName recovers the port key ("{name}:{node_port}/{type}")
// from a generated proxy name.
func PortKeyFromProxyName(name string) string {
	return LastTwoColonSegments(name)
}
