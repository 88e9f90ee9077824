package intake

// Treatment is the kind of treatment the patient is receiving.
type Treatment string

// Treatment options.
const (
	TreatmentMedicationPrescribed   Treatment = "medication-prescribed"
	TreatmentCulturalMedication     Treatment = "cultural-medication"
	TreatmentCulturalExerciseRest   Treatment = "cultural-exercise-rest"
	TreatmentExerciseRestPrescribed Treatment = "exercise-rest-prescribed"
)

// Option is a selectable value with its display label.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Treatments lists the treatment options in display order.
var Treatments = []Option{
	{Value: string(TreatmentMedicationPrescribed), Label: "Medication prescribed by a doctor"},
	{Value: string(TreatmentCulturalMedication), Label: "Cultural medication"},
	{Value: string(TreatmentCulturalExerciseRest), Label: "Cultural exercise/rest"},
	{Value: string(TreatmentExerciseRestPrescribed), Label: "Exercise/rest prescribed by a doctor"},
}

// Symptoms lists the symptom checkboxes in display order.
var Symptoms = []string{
	"Headache",
	"Nausea",
	"Dizziness",
	"Fatigue",
	"Fever",
	"Chills",
	"Cough",
	"Shortness of breath",
	"Chest pain",
	"Other",
}

// Valid reports whether t is a known treatment.
func (t Treatment) Valid() bool {
	for _, o := range Treatments {
		if o.Value == string(t) {
			return true
		}
	}
	return false
}

// ValidSymptom reports whether s is a known symptom.
func ValidSymptom(s string) bool {
	for _, v := range Symptoms {
		if v == s {
			return true
		}
	}
	return false
}

// Options is the payload of the options endpoint.
type Options struct {
	Treatments []Option `json:"treatments"`
	Symptoms   []string `json:"symptoms"`
}

// AllOptions returns every selectable option.
func AllOptions() Options {
	return Options{Treatments: Treatments, Symptoms: Symptoms}
}
