package dto

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Email    string `json:"email" bson:"email" validate:"required,email"`
	Password string `json:"password" bson:"password" validate:"required"`
}

// UpdateUserRequest is the body of PATCH /users/{user}. Absent fields are
// left untouched.
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	Password *string `json:"password,omitempty" bson:"password,omitempty" validate:"omitempty,min=1"`
}
