package dto

// SharedContactPatch is a partial update of a flat contact.
type SharedContactPatch struct {
	FirstName   *string `json:"firstName,omitempty" bson:"firstName,omitempty" validate:"omitempty,min=1"`
	LastName    *string `json:"lastName,omitempty" bson:"lastName,omitempty"`
	Email       *string `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	PhoneMobile *string `json:"phoneMobile,omitempty" bson:"phoneMobile,omitempty"`
	PhoneWork   *string `json:"phoneWork,omitempty" bson:"phoneWork,omitempty"`
}
