package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

func stayReceipt(description string) domain.Receipt {
	admission := domain.NewDate(2024, 3, 10)
	discharge := domain.NewDate(2024, 3, 12)
	return domain.Receipt{
		Number:        "R-1",
		HospitalName:  "General Hospital",
		AdmissionDate: &admission,
		DischargeDate: &discharge,
		Description:   description,
	}
}

func visitReceipt(description string) domain.Receipt {
	return domain.Receipt{Number: "R-2", HospitalName: "Family Clinic", Description: description}
}

func TestClassifyClaim(t *testing.T) {
	all := domain.EligibleClaimTypes(domain.ClaimTypes())

	cases := []struct {
		name     string
		eligible domain.EligibleClaimTypes
		receipts []domain.Receipt
		want     domain.ClaimType
	}{
		{
			name:     "stay with accident",
			eligible: all,
			receipts: []domain.Receipt{stayReceipt("fracture after road accident")},
			want:     domain.ClaimTypeAccidentHospitalisation,
		},
		{
			name:     "stay without accident",
			eligible: all,
			receipts: []domain.Receipt{stayReceipt("appendectomy")},
			want:     domain.ClaimTypeHospitalisation,
		},
		{
			name:     "stay with accident but accident type not eligible",
			eligible: domain.EligibleClaimTypes{domain.ClaimTypeHospitalisation},
			receipts: []domain.Receipt{stayReceipt("injury")},
			want:     domain.ClaimTypeHospitalisation,
		},
		{
			name:     "stay covered only by shield",
			eligible: domain.EligibleClaimTypes{domain.ClaimTypeShield, domain.ClaimTypeOutpatient},
			receipts: []domain.Receipt{stayReceipt("surgery")},
			want:     domain.ClaimTypeShield,
		},
		{
			name:     "visit with accident beats dental",
			eligible: all,
			receipts: []domain.Receipt{visitReceipt("tooth injured in accident")},
			want:     domain.ClaimTypeAccidentNonHospitalisation,
		},
		{
			name:     "dental visit",
			eligible: all,
			receipts: []domain.Receipt{visitReceipt("Dental scaling")},
			want:     domain.ClaimTypeDental,
		},
		{
			name:     "dental not eligible falls to outpatient",
			eligible: domain.EligibleClaimTypes{domain.ClaimTypeOutpatient},
			receipts: []domain.Receipt{visitReceipt("dentist")},
			want:     domain.ClaimTypeOutpatient,
		},
		{
			name:     "generic visit",
			eligible: all,
			receipts: []domain.Receipt{visitReceipt("consultation")},
			want:     domain.ClaimTypeOutpatient,
		},
		{
			name:     "nothing matches prefers hospitalisation",
			eligible: domain.EligibleClaimTypes{domain.ClaimTypeDental, domain.ClaimTypeHospitalisation},
			receipts: []domain.Receipt{visitReceipt("consultation")},
			want:     domain.ClaimTypeHospitalisation,
		},
		{
			name:     "nothing matches takes first eligible",
			eligible: domain.EligibleClaimTypes{domain.ClaimTypeDental},
			receipts: []domain.Receipt{visitReceipt("consultation")},
			want:     domain.ClaimTypeDental,
		},
		{
			name:     "no eligible types",
			eligible: nil,
			receipts: []domain.Receipt{stayReceipt("accident")},
			want:     domain.ClaimTypeHospitalisation,
		},
		{
			name:     "indicator in hospital name",
			eligible: all,
			receipts: []domain.Receipt{{Number: "R", HospitalName: "Smile Dental Centre"}},
			want:     domain.ClaimTypeDental,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyClaim(tc.eligible, tc.receipts))
			assert.Equal(t, tc.want, ClassifyClaim(tc.eligible, tc.receipts), "deterministic")
		})
	}
}
