package models

// PhoneNumbers groups a contact's numbers.
type PhoneNumbers struct {
	Home   string `json:"home,omitempty" bson:"home,omitempty"`
	Work   string `json:"work,omitempty" bson:"work,omitempty"`
	Mobile string `json:"mobile,omitempty" bson:"mobile,omitempty"`
}

// Contact belongs to exactly one user. User is assigned by the server and
// is not part of the JSON representation.
type Contact struct {
	ID           string        `json:"_id,omitempty" bson:"_id,omitempty"`
	FirstName    string        `json:"firstName" bson:"firstName" validate:"required"`
	LastName     string        `json:"lastName,omitempty" bson:"lastName,omitempty"`
	Email        string        `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	PhoneNumbers *PhoneNumbers `json:"phoneNumbers,omitempty" bson:"phoneNumbers,omitempty"`
	User         string        `json:"-" bson:"user,omitempty"`
}

// SharedContact is an entry of the flat /contacts collection.
type SharedContact struct {
	ID          string `json:"_id,omitempty" bson:"_id,omitempty"`
	FirstName   string `json:"firstName" bson:"firstName" validate:"required"`
	LastName    string `json:"lastName,omitempty" bson:"lastName,omitempty"`
	Email       string `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	PhoneMobile string `json:"phoneMobile,omitempty" bson:"phoneMobile,omitempty"`
	PhoneWork   string `json:"phoneWork,omitempty" bson:"phoneWork,omitempty"`
}
