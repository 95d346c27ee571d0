package database

import (
	"context"

	"gorm.io/gorm"
)

// Create ensures the type T is saved to the database.
func Create[T any](ctx context.Context, db *gorm.DB, entity *T) error {
	return gorm.G[T](db).Create(ctx, entity)
}

// FindByID finds a record of type T by its ID.
func FindByID[T any](ctx context.Context, db *gorm.DB, id uint) (*T, error) {
	record, err := gorm.G[T](db).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindWhere returns every record of type T matching query.
func FindWhere[T any](ctx context.Context, db *gorm.DB, query string, args ...any) ([]T, error) {
	return gorm.G[T](db).Where(query, args...).Find(ctx)
}
