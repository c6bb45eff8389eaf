package catalog

import (
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
)

var (
	ErrCategoryNotFound = &apperr.NotFoundError{Resource: "category"}
	ErrProductNotFound  = &apperr.NotFoundError{Resource: "product"}
)

func categoryNotFound(id int64) error {
	return &apperr.NotFoundError{Resource: "category", ID: id}
}

func productNotFound(id int64) error {
	return &apperr.NotFoundError{Resource: "product", ID: id}
}
