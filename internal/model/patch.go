package model

import "time"

// SectionPatch carries an admin partial update. Nil fields are left untouched.
type SectionPatch struct {
	Sport        *string
	Title        *string
	ApplyStartAt *time.Time
	ApplyEndAt   *time.Time
	Capacity     *int
	Remaining    *int
	Status       *string
	ImageURL     *string
}

// ProfilePatch carries the owner-editable subset of a profile.
type ProfilePatch struct {
	Name  *string
	Phone *string
}
