package identity

import (
	"github.com/ehr/subscriber/internal/platform/fhir"
	"github.com/ehr/subscriber/pkg/fhirmodels"
)

// Patient is the minimal demographic record the subscription demo needs.
type Patient struct {
	FHIRID    string
	FirstName string
	LastName  string
	NameUse   string
	Gender    string
	BirthDate string
}

// PlaceholderPatient returns the fixed demo record stored under id.
func PlaceholderPatient(id string) *Patient {
	return &Patient{
		FHIRID:    id,
		FirstName: "DevDays",
		LastName:  "Patient",
		NameUse:   fhirmodels.NameUseOfficial,
		Gender:    fhirmodels.GenderUnknown,
		BirthDate: "2019-11-20",
	}
}

// Reference returns the relative "Patient/<id>" reference.
func (p *Patient) Reference() string {
	return fhir.RelativeReference("Patient", p.FHIRID)
}

func (p *Patient) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Patient",
		"id":           p.FHIRID,
		"name": []fhir.HumanName{{
			Use:    p.NameUse,
			Family: p.LastName,
			Given:  []string{p.FirstName},
		}},
	}
	if p.Gender != "" {
		result["gender"] = p.Gender
	}
	if p.BirthDate != "" {
		result["birthDate"] = p.BirthDate
	}
	return result
}
