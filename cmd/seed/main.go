package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"storefront/internal/config"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// 開発用のカテゴリ
var categories = []struct{ name, description string }{
	{"Fruit", "Fresh fruit"},
	{"Bakery", "Bread and pastries"},
	{"Dairy", "Milk, eggs and cheese"},
}

// 開発用の商品データ（category はカテゴリ名）
var products = []struct {
	category string
	in       usecase.CreateProductInput
}{
	{"Fruit", usecase.CreateProductInput{Name: "Apple", Description: "Fuji, 1 piece", Price: decimal.RequireFromString("3.00"), Stock: 10, IsActive: true}},
	{"Bakery", usecase.CreateProductInput{Name: "Bread", Description: "Whole wheat loaf", Price: decimal.RequireFromString("5.00"), Stock: 1, IsActive: true}},
	{"Dairy", usecase.CreateProductInput{Name: "Milk", Description: "1L", Price: decimal.RequireFromString("2.49"), Stock: 2, IsActive: true}},
	{"Dairy", usecase.CreateProductInput{Name: "Eggs", Description: "10 pack", Price: decimal.RequireFromString("4.20"), Stock: 25, IsActive: true}},
	{"Fruit", usecase.CreateProductInput{Name: "Seasonal Melon", Description: "Out of season", Price: decimal.RequireFromString("12.00"), Stock: 3, IsActive: false}},
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("load .env failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := run(context.Background()); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	uc := usecase.NewProductUsecase(infraRepo.NewProductGormRepository(gormDB))
	categoryUC := usecase.NewCategoryUsecase(infraRepo.NewCategoryGormRepository(gormDB))

	// 既にあれば入れない
	existing, err := uc.ListProducts(ctx, 0, 1, 1)
	if err != nil {
		return err
	}
	if existing.Total > 0 {
		slog.Info("products already seeded", slog.Int64("total", existing.Total))
		return nil
	}

	categoryIDs := map[string]int64{}
	for _, c := range categories {
		created, err := categoryUC.CreateCategory(ctx, c.name, c.description)
		if err != nil {
			return err
		}
		categoryIDs[c.name] = created.ID
	}

	for _, sp := range products {
		in := sp.in
		id := categoryIDs[sp.category]
		in.CategoryID = &id
		p, err := uc.CreateProduct(ctx, in)
		if err != nil {
			return err
		}
		slog.Info("product created", slog.Int64("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}
