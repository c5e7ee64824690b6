package models

import "time"

// Institution is a searchable higher-education record.
type Institution struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	City               string    `db:"city" json:"city"`
	State              string    `db:"state" json:"state"`
	Ownership          string    `db:"ownership" json:"ownership"`
	StudentSize        int       `db:"student_size" json:"student_size"`
	AdmissionRate      float64   `db:"admission_rate" json:"admission_rate"`
	InStateTuition     int       `db:"in_state_tuition" json:"in_state_tuition"`
	OutOfStateTuition  int       `db:"out_of_state_tuition" json:"out_of_state_tuition"`
	MedianEarnings10yr int       `db:"median_earnings_10yr" json:"median_earnings_10yr"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// SchoolData is the wire shape of one institution inside comparison reports.
type SchoolData struct {
	Name               string  `json:"name"`
	City               string  `json:"city"`
	State              string  `json:"state"`
	Ownership          string  `json:"ownership"`
	StudentSize        int     `json:"student_size"`
	AdmissionRate      float64 `json:"admission_rate"`
	InStateTuition     int     `json:"in_state_tuition"`
	OutOfStateTuition  int     `json:"out_of_state_tuition"`
	MedianEarnings10yr int     `json:"median_earnings_10yr"`
}

// SchoolDataFrom projects an institution row onto the report shape.
func SchoolDataFrom(inst Institution) SchoolData {
	return SchoolData{
		Name:               inst.Name,
		City:               inst.City,
		State:              inst.State,
		Ownership:          inst.Ownership,
		StudentSize:        inst.StudentSize,
		AdmissionRate:      inst.AdmissionRate,
		InStateTuition:     inst.InStateTuition,
		OutOfStateTuition:  inst.OutOfStateTuition,
		MedianEarnings10yr: inst.MedianEarnings10yr,
	}
}

// SearchRequest queries the institution catalog.
type SearchRequest struct {
	Query string `json:"query" validate:"required,min=2"`
}

// SearchResponse carries matched institutions.
type SearchResponse struct {
	Schools []Institution `json:"schools"`
}
