package student

import (
	"strings"
	"time"

	"github.com/trezcool/ada/core"
)

type Class struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Student struct {
	ID              int64     `json:"id"`
	AdmissionNumber string    `json:"admission_number"`
	Name            string    `json:"name"`
	ClassID         int64     `json:"class_id,omitempty"` // 0: no class
	ClassName       string    `json:"class_name,omitempty"`
	GuardianContact string    `json:"guardian_contact,omitempty"`
	BusLocation     string    `json:"bus_location,omitempty"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// NewStudent contains information needed to register a Student.
type NewStudent struct {
	AdmissionNumber string `json:"admission_number" validate:"required,notblank,max=50"`
	Name            string `json:"name" validate:"required,notblank,max=255"`
	ClassID         int64  `json:"class_id" validate:"gte=0"`
	GuardianContact string `json:"guardian_contact" validate:"max=255"`
	BusLocation     string `json:"bus_location" validate:"max=100"`
}

func (ns *NewStudent) Clean() {
	ns.AdmissionNumber = CleanAdmissionNumber(ns.AdmissionNumber)
	ns.Name = core.CleanString(ns.Name)
	ns.GuardianContact = core.CleanString(ns.GuardianContact)
	ns.BusLocation = core.CleanString(ns.BusLocation)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// Blank fields keep their current value.
type UpdateStudent struct {
	Name            string `json:"name" validate:"max=255"`
	ClassID         *int64 `json:"class_id" validate:"omitempty,gte=0"`
	GuardianContact string `json:"guardian_contact" validate:"max=255"`
	BusLocation     *string `json:"bus_location" validate:"omitempty,max=100"`
}

func (us *UpdateStudent) apply(std *Student) {
	if name := core.CleanString(us.Name); name != "" {
		std.Name = name
	}
	if us.ClassID != nil {
		std.ClassID = *us.ClassID
	}
	if contact := core.CleanString(us.GuardianContact); contact != "" {
		std.GuardianContact = contact
	}
	if us.BusLocation != nil {
		std.BusLocation = core.CleanString(*us.BusLocation)
	}
}

type QueryFilter struct {
	Search  string `query:"search"` // name or admission number
	ClassID int64  `query:"class_id"`
	Page    core.Page
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// CleanAdmissionNumber normalizes an admission number, e.g. " adm001 " -> "ADM001".
func CleanAdmissionNumber(s string) string {
	return strings.ToUpper(core.CleanString(s))
}
