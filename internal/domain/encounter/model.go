package encounter

import (
	"github.com/ehr/subscriber/internal/platform/fhir"
	"github.com/ehr/subscriber/pkg/fhirmodels"
)

// Encounter is the triggering event posted for a subscribed patient.
type Encounter struct {
	FHIRID      string
	Status      string
	ClassSystem string
	ClassCode   string
	PatientRef  string
}

// NewTrigger builds an in-progress virtual encounter for patientRef.
func NewTrigger(patientRef string) *Encounter {
	return &Encounter{
		Status:      fhirmodels.EncounterStatusInProgress,
		ClassSystem: fhirmodels.EncounterClassSystem,
		ClassCode:   fhirmodels.EncounterClassVirtual,
		PatientRef:  patientRef,
	}
}

func (e *Encounter) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Encounter",
		"status":       e.Status,
		"class": fhir.Coding{
			System: e.ClassSystem,
			Code:   e.ClassCode,
		},
		"subject": fhir.Reference{Reference: e.PatientRef},
	}
	if e.FHIRID != "" {
		result["id"] = e.FHIRID
	}
	return result
}
