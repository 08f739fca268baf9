package models

type ServicePoint struct {
	ServiceID         string `json:"service_id"`
	Name              string `json:"name"`
	Code              string `json:"code"`
	AvgServiceMinutes int    `json:"avg_service_minutes,omitempty"`
	Active            bool   `json:"active"`
}

type Practitioner struct {
	PractitionerID string `json:"practitioner_id"`
	ServiceID      string `json:"service_id"`
	Name           string `json:"name"`
	Specialty      string `json:"specialty,omitempty"`
	Active         bool   `json:"active"`
}
