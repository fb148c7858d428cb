package domain

import (
	"strings"
	"time"
)

// User — учётная запись клиента. Владелец записи: user-service.
// PasswordHash хранится только как bcrypt-хэш, исходный пароль не сохраняется.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate проверяет обязательные поля учётной записи.
func (u *User) Validate() []error {
	var errs []error

	if !strings.Contains(u.Email, "@") {
		errs = append(errs, ErrEmailInvalid)
	}
	if u.Name == "" {
		errs = append(errs, ErrUserNameRequired)
	}

	return errs
}

// MinPasswordLength — минимальная длина пароля при регистрации.
const MinPasswordLength = 8
