package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCaseType(t *testing.T) {
	ct, ok := ParseCaseType("ovi_dui")
	assert.True(t, ok)
	assert.Equal(t, CaseOVIDUI, ct)

	ct, ok = ParseCaseType("ovi / dui")
	assert.True(t, ok)
	assert.Equal(t, CaseOVIDUI, ct)

	ct, ok = ParseCaseType("2")
	assert.True(t, ok)
	assert.Equal(t, CaseDrugCharges, ct)

	_, ok = ParseCaseType("13")
	assert.False(t, ok)
	_, ok = ParseCaseType("jaywalking")
	assert.False(t, ok)
	_, ok = ParseCaseType("  ")
	assert.False(t, ok)
}

func TestReferralSourceRequiresDetail(t *testing.T) {
	for _, o := range ReferralOptions() {
		src := ReferralSource(o.Value)
		want := src == ReferralReferral || src == ReferralOther
		assert.Equal(t, want, src.RequiresDetail(), o.Value)
	}
}

func TestOptionsAreCopies(t *testing.T) {
	opts := UrgencyOptions()
	opts[0].Value = "mutated"
	assert.Equal(t, string(UrgencyUrgent), UrgencyOptions()[0].Value)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "OVI / DUI", Label(CaseTypeOptions(), "ovi_dui"))
	assert.Equal(t, "unknown", Label(CaseTypeOptions(), "unknown"))
}

func TestLeadSourceValid(t *testing.T) {
	assert.True(t, SourceChat.Valid())
	assert.True(t, SourceCheckpointCTA.Valid())
	assert.False(t, LeadSource("popup").Valid())
}

func TestMenuNumbering(t *testing.T) {
	got := menu([]Option{{"a", "Alpha"}, {"b", "Beta"}})
	assert.Equal(t, "\n1. Alpha\n2. Beta", got)
}
