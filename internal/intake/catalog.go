package intake

import (
	"strconv"
	"strings"
)

// Option is one selectable value in an intake menu.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// CaseType identifies the kind of charge the prospective client faces.
type CaseType string

const (
	CaseOVIDUI             CaseType = "ovi_dui"
	CaseDrugCharges        CaseType = "drug_charges"
	CaseAssaultDomestic    CaseType = "assault_domestic"
	CaseTheftFraud         CaseType = "theft_fraud"
	CaseSexCrimes          CaseType = "sex_crimes"
	CaseWeapons            CaseType = "weapons"
	CaseTraffic            CaseType = "traffic"
	CaseJuvenile           CaseType = "juvenile"
	CaseExpungement        CaseType = "expungement"
	CaseProbationViolation CaseType = "probation_violation"
	CaseFederal            CaseType = "federal"
	CaseOther              CaseType = "other"
)

// County is the Ohio county where the case is filed.
type County string

// Urgency captures how soon the caller needs help.
type Urgency string

const (
	UrgencyUrgent    Urgency = "urgent"
	UrgencySoon      Urgency = "soon"
	UrgencyExploring Urgency = "exploring"
)

// ReferralSource records how the caller found the firm.
type ReferralSource string

const (
	ReferralGoogleSearch      ReferralSource = "google_search"
	ReferralGoogleMaps        ReferralSource = "google_maps"
	ReferralSocialMedia       ReferralSource = "social_media"
	ReferralReferral          ReferralSource = "referral"
	ReferralPreviousClient    ReferralSource = "previous_client"
	ReferralAttorneyDirectory ReferralSource = "attorney_directory"
	ReferralBillboardTVRadio  ReferralSource = "billboard_tv_radio"
	ReferralOther             ReferralSource = "other"
)

// RequiresDetail reports whether the follow-up detail question applies.
func (r ReferralSource) RequiresDetail() bool {
	return r == ReferralReferral || r == ReferralOther
}

// LeadSource tags the UI surface that produced a submission.
type LeadSource string

const (
	SourceModal         LeadSource = "modal"
	SourceQuickForm     LeadSource = "quick_form"
	SourceChat          LeadSource = "chat"
	SourceCheckpointCTA LeadSource = "checkpoint_cta"
)

// Valid reports whether s is a known lead source.
func (s LeadSource) Valid() bool {
	switch s {
	case SourceModal, SourceQuickForm, SourceChat, SourceCheckpointCTA:
		return true
	}
	return false
}

var caseTypeOptions = []Option{
	{string(CaseOVIDUI), "OVI / DUI"},
	{string(CaseDrugCharges), "Drug Charges"},
	{string(CaseAssaultDomestic), "Assault / Domestic Violence"},
	{string(CaseTheftFraud), "Theft / Fraud"},
	{string(CaseSexCrimes), "Sex Crimes"},
	{string(CaseWeapons), "Weapons Charges"},
	{string(CaseTraffic), "Traffic / License Suspension"},
	{string(CaseJuvenile), "Juvenile"},
	{string(CaseExpungement), "Record Sealing / Expungement"},
	{string(CaseProbationViolation), "Probation Violation"},
	{string(CaseFederal), "Federal Charges"},
	{string(CaseOther), "Something Else"},
}

var countyOptions = []Option{
	{"franklin", "Franklin"},
	{"licking", "Licking"},
	{"fairfield", "Fairfield"},
	{"perry", "Perry"},
	{"muskingum", "Muskingum"},
	{"hocking", "Hocking"},
	{"pickaway", "Pickaway"},
	{"delaware", "Delaware"},
	{"knox", "Knox"},
	{"athens", "Athens"},
	{"other", "Other / Not Sure"},
}

var urgencyOptions = []Option{
	{string(UrgencyUrgent), "Urgent - court date soon or someone is in custody"},
	{string(UrgencySoon), "Soon - within the next few weeks"},
	{string(UrgencyExploring), "Just exploring my options"},
}

var referralOptions = []Option{
	{string(ReferralGoogleSearch), "Google Search"},
	{string(ReferralGoogleMaps), "Google Maps"},
	{string(ReferralSocialMedia), "Social Media"},
	{string(ReferralReferral), "Referral from someone"},
	{string(ReferralPreviousClient), "Previous Client"},
	{string(ReferralAttorneyDirectory), "Attorney Directory"},
	{string(ReferralBillboardTVRadio), "Billboard / TV / Radio"},
	{string(ReferralOther), "Other"},
}

// CaseTypeOptions returns the case type menu in display order.
func CaseTypeOptions() []Option { return cloneOptions(caseTypeOptions) }

// CountyOptions returns the county menu in display order.
func CountyOptions() []Option { return cloneOptions(countyOptions) }

// UrgencyOptions returns the urgency menu in display order.
func UrgencyOptions() []Option { return cloneOptions(urgencyOptions) }

// ReferralOptions returns the how-found menu in display order.
func ReferralOptions() []Option { return cloneOptions(referralOptions) }

// ParseCaseType accepts a value, a label, or a 1-based menu number.
func ParseCaseType(in string) (CaseType, bool) {
	v, ok := matchOption(caseTypeOptions, in)
	return CaseType(v), ok
}

// ParseCounty accepts a value, a label, or a 1-based menu number.
func ParseCounty(in string) (County, bool) {
	v, ok := matchOption(countyOptions, in)
	return County(v), ok
}

// ParseUrgency accepts a value, a label, or a 1-based menu number.
func ParseUrgency(in string) (Urgency, bool) {
	v, ok := matchOption(urgencyOptions, in)
	return Urgency(v), ok
}

// ParseReferralSource accepts a value, a label, or a 1-based menu number.
func ParseReferralSource(in string) (ReferralSource, bool) {
	v, ok := matchOption(referralOptions, in)
	return ReferralSource(v), ok
}

// Label returns the display label for value within opts, or value itself.
func Label(opts []Option, value string) string {
	for _, o := range opts {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

func matchOption(opts []Option, in string) (string, bool) {
	in = strings.TrimSpace(in)
	if in == "" {
		return "", false
	}
	if n, err := strconv.Atoi(in); err == nil {
		if n >= 1 && n <= len(opts) {
			return opts[n-1].Value, true
		}
		return "", false
	}
	for _, o := range opts {
		if o.Value == in || strings.EqualFold(o.Label, in) || strings.EqualFold(o.Value, in) {
			return o.Value, true
		}
	}
	return "", false
}

func cloneOptions(in []Option) []Option {
	out := make([]Option, len(in))
	copy(out, in)
	return out
}

// menu renders options as a numbered list for chat prompts.
func menu(opts []Option) string {
	var b strings.Builder
	for i, o := range opts {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(o.Label)
	}
	return b.String()
}
