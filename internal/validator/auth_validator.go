package validator

import (
	"context"
	"regexp"

	"storefront/internal/usecase"
)

const (
	minPasswordLen = 8
	maxNameLen     = 100
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// 国番号の + と数字・ハイフン・空白
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\- ]{6,19}$`)
)

type authValidator struct{}

// Usecaseは interface を依存注入
func NewAuthValidator() usecase.AuthValidator {
	return &authValidator{}
}

// サインアップの入力を検証（email重複はDBの制約で判定する）
func (v *authValidator) ValidateRegister(ctx context.Context, email string, password string) error {
	if email == "" || password == "" {
		return usecase.ErrValidation
	}
	if !emailPattern.MatchString(email) {
		return usecase.ErrValidation
	}
	if len(password) < minPasswordLen {
		return usecase.ErrValidation
	}
	return nil
}

// 氏名は必須、電話番号は任意（空なら未登録）
func (v *authValidator) ValidateProfile(ctx context.Context, firstName string, lastName string, phone string) error {
	if firstName == "" || lastName == "" {
		return usecase.ErrValidation
	}
	if len(firstName) > maxNameLen || len(lastName) > maxNameLen {
		return usecase.ErrValidation
	}
	if phone != "" && !phonePattern.MatchString(phone) {
		return usecase.ErrValidation
	}
	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	if email == "" || password == "" {
		return usecase.ErrValidation
	}
	if !emailPattern.MatchString(email) {
		return usecase.ErrValidation
	}
	return nil
}
