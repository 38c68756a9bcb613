package categories

// CreateCategoryRequest is the body of POST /categories/.
type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required,max=150"`
}

// UpdateCategoryRequest is the body of PUT /categories/{id}. Omitted fields
// are left unchanged.
type UpdateCategoryRequest struct {
	Name *string `json:"name" validate:"omitempty,min=1,max=150"`
}

// ListCategoriesRequest carries listing parameters.
type ListCategoriesRequest struct {
	Skip  int
	Limit int
}

// CategoryResponse is the public view of a category.
type CategoryResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	UserID int64  `json:"user_id"`
}

// ToResponse maps a Category to its public view.
func ToResponse(c Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, UserID: c.UserID}
}
