package models

import (
	"database/sql"
	"time"
)

// Category is a named, activatable feedback category
type Category struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	Description sql.NullString `json:"-"`
	Icon        sql.NullString `json:"-"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DefaultCategories seeds a fresh installation
var DefaultCategories = []Category{
	{Name: "Academic", Description: NullString("Courses, teaching, exams and curriculum"), Icon: NullString("fa-graduation-cap"), Active: true},
	{Name: "Infrastructure", Description: NullString("Buildings, classrooms, network and facilities"), Icon: NullString("fa-building"), Active: true},
	{Name: "Administrative", Description: NullString("Admissions, fees, records and office services"), Icon: NullString("fa-briefcase"), Active: true},
	{Name: "Other", Description: NullString("Anything not covered elsewhere"), Icon: NullString("fa-comment"), Active: true},
}
