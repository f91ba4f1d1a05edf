package protocol

import "time"

// RegisterTimeoutHint is the requestHeader.timeoutHint (ms) the
// original sets on every outbound RegisterServer/RegisterServer2 call
// (ua_discovery.c setupRegisterRequest).
const RegisterTimeoutHint = 10000 * time.Millisecond

// LocalizedText is a minimal stand-in for the OPC UA LocalizedText
// structure: a locale tag plus display text. serverNames carries at
// least one of these (spec.md §3).
type LocalizedText struct {
	Locale string
	Text   string
}

// ApplicationType mirrors the subset of OPC UA ApplicationType this
// component reads off the hosting server's application description.
type ApplicationType int

const (
	ApplicationTypeServer ApplicationType = iota
	ApplicationTypeClient
	ApplicationTypeClientAndServer
	ApplicationTypeDiscoveryServer
)

// ApplicationDescription is the subset of the hosting server's own
// application description that feeds an outbound registration
// (spec.md §4.3 "Request payload").
type ApplicationDescription struct {
	ApplicationURI   string
	ProductURI       string
	ApplicationName  LocalizedText
	ApplicationType  ApplicationType
	GatewayServerURI string
	DiscoveryURLs    []string
}

// RegisteredServer is the wire body both RegisterServer and
// RegisterServer2 carry, built fresh per outbound call by
// pool.setupRegisterRequest (spec.md §4.3).
type RegisteredServer struct {
	ServerURI         string
	ProductURI        string
	ServerType        ApplicationType
	GatewayServerURI  string
	DiscoveryURLs     []string
	ServerNames       []LocalizedText
	SemaphoreFilePath string
	IsOnline          bool
}

// MdnsDiscoveryConfiguration is the discovery-configuration extension
// object RegisterServer2 carries when multicast is enabled
// (ua_discovery.c register2AsyncResponse / UA_TYPES_MDNSDISCOVERYCONFIGURATION).
type MdnsDiscoveryConfiguration struct {
	MdnsServerName     string
	ServerCapabilities []string
}

// RegisterServerRequest is the outbound RegisterServer call body.
type RegisterServerRequest struct {
	TimeoutHint time.Duration
	Server      RegisteredServer
}

// RegisterServerResponse is the service result of a RegisterServer call.
type RegisterServerResponse struct {
	ServiceResult StatusCode
}

// RegisterServer2Request additionally carries the mDNS configuration
// extension when multicast is compiled in (here: configured).
type RegisterServer2Request struct {
	TimeoutHint          time.Duration
	Server               RegisteredServer
	DiscoveryConfig      *MdnsDiscoveryConfiguration
}

// RegisterServer2Response is the service result of a RegisterServer2 call.
type RegisterServer2Response struct {
	ServiceResult StatusCode
}
