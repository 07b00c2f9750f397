package curator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePromotion_ArtifactTypePolicy(t *testing.T) {
	dec := ValidatePromotion("blueprint", "intent", "t1", "accepted")

	assert.False(t, dec.IsAllowed)
	assert.Equal(t, BasisArtifactTypePolicy, dec.PolicyBasis)
}

func TestValidatePromotion_WorkflowIntoIntentRegistry(t *testing.T) {
	dec := ValidatePromotion("workflow", "intent", "t1", "accepted")

	assert.True(t, dec.IsAllowed)
	assert.Equal(t, BasisPromotionPolicy, dec.PolicyBasis)
}

func TestValidatePromotion_UnknownRegistryType(t *testing.T) {
	dec := ValidatePromotion("workflow", "marketplace", "t1", "accepted")

	assert.False(t, dec.IsAllowed)
	assert.Equal(t, BasisRegistryTypePolicy, dec.PolicyBasis)
}

func TestValidatePromotion_LifecycleMustBeAccepted(t *testing.T) {
	for _, state := range []string{"pending", "ready", "archived", ""} {
		dec := ValidatePromotion("intent", "intent", "t1", state)
		assert.False(t, dec.IsAllowed, "state %q must not be promotable", state)
		assert.Equal(t, BasisLifecyclePolicy, dec.PolicyBasis)
	}
}

func TestValidatePromotion_ReferentialTransparency(t *testing.T) {
	first := ValidatePromotion("workflow", "intent", "t1", "accepted")
	second := ValidatePromotion("workflow", "intent", "t1", "accepted")
	assert.Equal(t, first, second, "identical inputs must yield identical outputs")
}

func TestValidateCapability_NotRegistered(t *testing.T) {
	dec := ValidateCapability("content.parse", "t1", SecurityContext{}, Rules{})

	assert.False(t, dec.Allowed)
	assert.Equal(t, BasisCapabilityPolicy, dec.PolicyBasis)
	assert.Contains(t, dec.Reason, "not registered")
}

func TestValidateCapability_Disabled(t *testing.T) {
	rules := Rules{Capabilities: map[string]CapabilityRule{
		"content.parse": {Version: "1.2.0", Disabled: true},
	}}
	dec := ValidateCapability("content.parse", "t1", SecurityContext{}, rules)

	assert.False(t, dec.Allowed)
	assert.Contains(t, dec.Reason, "disabled")
}

func TestValidateCapability_TenantRestriction(t *testing.T) {
	rules := Rules{Capabilities: map[string]CapabilityRule{
		"content.parse": {Version: "1.2.0", AllowedTenants: []string{"t2"}},
	}}

	denied := ValidateCapability("content.parse", "t1", SecurityContext{}, rules)
	assert.False(t, denied.Allowed)
	assert.Equal(t, BasisTenantPolicy, denied.PolicyBasis)

	allowed := ValidateCapability("content.parse", "t2", SecurityContext{}, rules)
	assert.True(t, allowed.Allowed)
}

func TestValidateCapability_VersionCompatibility(t *testing.T) {
	rules := Rules{Capabilities: map[string]CapabilityRule{
		"current": {Version: "2.1.0", MinCompatible: "2.0.0"},
		"stale":   {Version: "1.9.0", MinCompatible: "2.0.0"},
	}}

	assert.True(t, ValidateCapability("current", "t1", SecurityContext{}, rules).VersionCompatible)
	assert.False(t, ValidateCapability("stale", "t1", SecurityContext{}, rules).VersionCompatible)
}

func TestValidateAccess(t *testing.T) {
	rules := Rules{Access: []AccessGrant{{CallerTenant: "t1", ResourceTenant: "t2"}}}

	assert.True(t, ValidateAccess("t1", "t1", Rules{}).Allowed, "same tenant always allowed")
	assert.True(t, ValidateAccess("t1", "t2", rules).Allowed, "explicit grant allowed")

	denied := ValidateAccess("t2", "t1", rules)
	assert.False(t, denied.Allowed, "grants are directional")
	assert.Equal(t, BasisCrossTenantPolicy, denied.PolicyBasis)
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, compareVersions("1.2.3", "1.2.3"))
	assert.Equal(t, -1, compareVersions("1.2", "1.10"))
	assert.Equal(t, 1, compareVersions("2.0.1", "2.0"))
}
