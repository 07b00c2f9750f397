// Package curator provides pure policy-decision functions consumed by the
// runtime. Every function here is referentially transparent: no I/O, no
// internally held state, and policy rules supplied by the caller on every
// call. Freshness of rules and lifecycle state is the caller's problem.
package curator

import (
	"fmt"
	"strconv"
	"strings"
)

// Policy basis tags carried on denials so callers can tell which rule fired.
const (
	BasisRegistryTypePolicy = "registry_type_policy"
	BasisLifecyclePolicy    = "lifecycle_policy"
	BasisArtifactTypePolicy = "artifact_type_policy"
	BasisPromotionPolicy    = "promotion_policy"
	BasisCapabilityPolicy   = "capability_policy"
	BasisTenantPolicy       = "tenant_policy"
	BasisCrossTenantPolicy  = "cross_tenant_policy"
)

// Rules is the caller-supplied policy rule set. The curator never fetches
// its own rules.
type Rules struct {
	Capabilities map[string]CapabilityRule
	Access       []AccessGrant
}

// CapabilityRule describes one capability's availability.
type CapabilityRule struct {
	// Version is the currently published capability version.
	Version string
	// MinCompatible is the oldest version callers may still rely on.
	MinCompatible string
	// AllowedTenants restricts the capability; empty means all tenants.
	AllowedTenants []string
	// Disabled withdraws the capability entirely.
	Disabled bool
}

// AccessGrant permits a caller tenant to read another tenant's resources.
type AccessGrant struct {
	CallerTenant   string
	ResourceTenant string
}

// SecurityContext carries the caller identity evaluated against rules.
type SecurityContext struct {
	Principal string
	Roles     []string
}

// CapabilityDecision is the result of a capability lookup.
type CapabilityDecision struct {
	Allowed           bool
	VersionCompatible bool
	PolicyBasis       string
	Reason            string
}

// PromotionDecision is the result of a promotion check.
type PromotionDecision struct {
	IsAllowed   bool
	PolicyBasis string
	Reason      string
}

// AccessDecision is the result of a cross-tenant access check.
type AccessDecision struct {
	Allowed     bool
	PolicyBasis string
	Reason      string
}

// promotionRegistries is the closed set of registries artifacts can be
// promoted into, each with the artifact types it accepts.
var promotionRegistries = map[string]map[string]bool{
	"solution": {"solution": true, "blueprint": true, "journey": true},
	"intent":   {"intent": true, "workflow": true},
	"realm":    {"realm": true, "capability": true},
}

// ValidateCapability decides whether a capability may be used by a tenant.
// Identical inputs always yield identical outputs.
func ValidateCapability(capabilityID, tenantID string, sec SecurityContext, rules Rules) CapabilityDecision {
	rule, ok := rules.Capabilities[capabilityID]
	if !ok {
		return CapabilityDecision{
			Allowed:     false,
			PolicyBasis: BasisCapabilityPolicy,
			Reason:      fmt.Sprintf("capability not registered: %s", capabilityID),
		}
	}
	if rule.Disabled {
		return CapabilityDecision{
			Allowed:     false,
			PolicyBasis: BasisCapabilityPolicy,
			Reason:      fmt.Sprintf("capability disabled: %s", capabilityID),
		}
	}
	if len(rule.AllowedTenants) > 0 && !contains(rule.AllowedTenants, tenantID) {
		return CapabilityDecision{
			Allowed:     false,
			PolicyBasis: BasisTenantPolicy,
			Reason:      fmt.Sprintf("capability %s not granted to tenant %s", capabilityID, tenantID),
		}
	}
	return CapabilityDecision{
		Allowed:           true,
		VersionCompatible: compareVersions(rule.Version, rule.MinCompatible) >= 0,
		PolicyBasis:       BasisCapabilityPolicy,
		Reason:            "capability allowed",
	}
}

// ValidatePromotion decides whether an artifact may be promoted into a
// registry. Each violated rule short-circuits with a distinct policy basis.
func ValidatePromotion(artifactType, registryType, tenantID, lifecycleState string) PromotionDecision {
	allowed, ok := promotionRegistries[registryType]
	if !ok {
		return PromotionDecision{
			IsAllowed:   false,
			PolicyBasis: BasisRegistryTypePolicy,
			Reason:      fmt.Sprintf("unknown registry type: %s", registryType),
		}
	}
	if lifecycleState != "accepted" {
		return PromotionDecision{
			IsAllowed:   false,
			PolicyBasis: BasisLifecyclePolicy,
			Reason:      fmt.Sprintf("artifact lifecycle state %q is not promotable", lifecycleState),
		}
	}
	if !allowed[artifactType] {
		return PromotionDecision{
			IsAllowed:   false,
			PolicyBasis: BasisArtifactTypePolicy,
			Reason:      fmt.Sprintf("artifact type %q not allowed in %s registry", artifactType, registryType),
		}
	}
	return PromotionDecision{
		IsAllowed:   true,
		PolicyBasis: BasisPromotionPolicy,
		Reason:      fmt.Sprintf("promotion of %s into %s registry allowed for tenant %s", artifactType, registryType, tenantID),
	}
}

// ValidateAccess decides whether a caller tenant may read a resource owned
// by another tenant. Same-tenant access is always allowed.
func ValidateAccess(callerTenant, resourceTenant string, rules Rules) AccessDecision {
	if callerTenant == resourceTenant {
		return AccessDecision{
			Allowed:     true,
			PolicyBasis: BasisTenantPolicy,
			Reason:      "caller owns the resource",
		}
	}
	for _, grant := range rules.Access {
		if grant.CallerTenant == callerTenant && grant.ResourceTenant == resourceTenant {
			return AccessDecision{
				Allowed:     true,
				PolicyBasis: BasisCrossTenantPolicy,
				Reason:      fmt.Sprintf("cross-tenant grant from %s to %s", resourceTenant, callerTenant),
			}
		}
	}
	return AccessDecision{
		Allowed:     false,
		PolicyBasis: BasisCrossTenantPolicy,
		Reason:      fmt.Sprintf("tenant %s has no grant for resources of tenant %s", callerTenant, resourceTenant),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// compareVersions compares dotted numeric versions. Non-numeric segments
// fall back to string comparison. Missing segments count as zero.
func compareVersions(a, b string) int {
	if a == b {
		return 0
	}
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		an, aerr := strconv.Atoi(av)
		bn, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
