package enums

import "strings"

// GatewayEnvironment selects a provider's sandbox or live endpoints.
type GatewayEnvironment string

const (
	GatewayEnvironmentSandbox    GatewayEnvironment = "sandbox"
	GatewayEnvironmentProduction GatewayEnvironment = "production"
)

// IsProduction treats "live" and "prod" as production, and everything else as sandbox.
func (e GatewayEnvironment) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(string(e))) {
	case "production", "prod", "live":
		return true
	}
	return false
}

// ParseGatewayEnvironment normalizes input. Unknown values fall back to sandbox.
func ParseGatewayEnvironment(value string) GatewayEnvironment {
	if GatewayEnvironment(value).IsProduction() {
		return GatewayEnvironmentProduction
	}
	return GatewayEnvironmentSandbox
}
