package database

import (
	"errors"
	"fmt"

	"vigil/internal/domain"

	"gorm.io/gorm"
)

func GetOperatorByEmail(email string) (domain.Operator, error) {
	if DB == nil {
		return domain.Operator{}, fmt.Errorf("database not initialised")
	}

	var operator domain.Operator
	err := DB.Where("email = ?", email).First(&operator).Error
	return operator, err
}

func CreateOperator(operator *domain.Operator) error {
	if DB == nil {
		return fmt.Errorf("database not initialised")
	}
	return DB.Create(operator).Error
}

// HasOperators reports whether any operator account exists yet. The first
// registered account is granted the admin role.
func HasOperators() (bool, error) {
	if DB == nil {
		return false, fmt.Errorf("database not initialised")
	}

	var operator domain.Operator
	err := DB.Select("id").Take(&operator).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
