package algorand

import (
	"net/url"
	"strings"
)

// EndpointLabel shortens an indexer URL to a metrics label.
// Examples:
//   - "https://mainnet-idx.algonode.cloud" -> "algonode-mainnet"
//   - "https://testnet-idx.algonode.cloud" -> "algonode-testnet"
//   - "http://localhost:8980" -> "localhost"
func EndpointLabel(indexerURL string) string {
	parsed, err := url.Parse(indexerURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	host := parsed.Hostname()

	network := ""
	for _, n := range []string{"mainnet", "testnet", "betanet"} {
		if strings.Contains(host, n) {
			network = n
			break
		}
	}
	for _, provider := range []string{"algonode", "nodely", "algoexplorerapi", "purestake"} {
		if strings.Contains(host, provider) {
			if network == "" {
				return provider
			}
			return provider + "-" + network
		}
	}
	if network != "" {
		return network
	}
	return host
}
