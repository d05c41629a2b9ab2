package models

// User is the stored user document. Password holds the bcrypt hash and never
// leaves the service.
type User struct {
	ID       string `json:"_id" bson:"_id"`
	Email    string `json:"email" bson:"email"`
	Password string `json:"-" bson:"password"`
}

// PublicUser is what clients see of a user.
type PublicUser struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

// Public projects u to its public view.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email}
}
