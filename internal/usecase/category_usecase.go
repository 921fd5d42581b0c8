package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type CategoryUsecase struct {
	categoryRepo repo.CategoryRepository
}

// DI
func NewCategoryUsecase(categoryRepo repo.CategoryRepository) *CategoryUsecase {
	return &CategoryUsecase{categoryRepo: categoryRepo}
}

type CategoryListOutput struct {
	Items []model.Category `json:"items"`
}

// GET /categories（名前順）
func (u *CategoryUsecase) ListCategories(ctx context.Context) (CategoryListOutput, error) {
	items, err := u.categoryRepo.List(ctx)
	if err != nil {
		return CategoryListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return CategoryListOutput{Items: items}, nil
}

func (u *CategoryUsecase) GetCategory(ctx context.Context, id int64) (model.Category, error) {
	if id <= 0 {
		return model.Category{}, NewHTTPError(http.StatusBadRequest, "invalid category id")
	}
	c, err := u.categoryRepo.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Category{}, NewHTTPError(http.StatusNotFound, "category not found")
	}
	if err != nil {
		return model.Category{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return c, nil
}

// カテゴリ登録（seed用。APIには出していない）
func (u *CategoryUsecase) CreateCategory(ctx context.Context, name string, description string) (model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Category{}, NewHTTPError(http.StatusBadRequest, "name required")
	}
	c, err := u.categoryRepo.Create(ctx, model.Category{Name: name, Description: description})
	if errors.Is(err, repo.ErrDuplicate) {
		return model.Category{}, NewHTTPError(http.StatusConflict, "category already exists")
	}
	if err != nil {
		return model.Category{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return c, nil
}
