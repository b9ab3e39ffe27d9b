package usecase

import (
	"strings"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

var (
	accidentIndicators = []string{"accident", "injury", "injured"}
	dentalIndicators   = []string{"dental", "dentist", "tooth", "teeth"}
)

// ClassifyClaim picks the claim type for a set of receipts. Rules are applied
// in a fixed order and a type is only returned when the policy allows it,
// except for the final HOSPITALISATION default.
func ClassifyClaim(eligible domain.EligibleClaimTypes, receipts []domain.Receipt) domain.ClaimType {
	var hospitalStay, accident, dental bool
	for _, receipt := range receipts {
		if receipt.HasHospitalStay() {
			hospitalStay = true
		}
		text := strings.ToLower(receipt.Description + " " + receipt.HospitalName)
		if containsAny(text, accidentIndicators) {
			accident = true
		}
		if containsAny(text, dentalIndicators) {
			dental = true
		}
	}

	if hospitalStay {
		switch {
		case accident && eligible.Contains(domain.ClaimTypeAccidentHospitalisation):
			return domain.ClaimTypeAccidentHospitalisation
		case eligible.Contains(domain.ClaimTypeHospitalisation):
			return domain.ClaimTypeHospitalisation
		case eligible.Contains(domain.ClaimTypeShield):
			return domain.ClaimTypeShield
		}
	} else {
		switch {
		case accident && eligible.Contains(domain.ClaimTypeAccidentNonHospitalisation):
			return domain.ClaimTypeAccidentNonHospitalisation
		case dental && eligible.Contains(domain.ClaimTypeDental):
			return domain.ClaimTypeDental
		case eligible.Contains(domain.ClaimTypeOutpatient):
			return domain.ClaimTypeOutpatient
		}
	}

	if eligible.Contains(domain.ClaimTypeHospitalisation) {
		return domain.ClaimTypeHospitalisation
	}
	if len(eligible) > 0 {
		return eligible[0]
	}
	return domain.ClaimTypeHospitalisation
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
