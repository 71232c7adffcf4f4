package models

import "time"

type Product struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(500);not null"`
	Category  string `gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductSEO holds the AI rewritten fields of a product, one row per product.
type ProductSEO struct {
	ProductID   uint   `gorm:"primaryKey"`
	Title       string `gorm:"type:varchar(500)"`
	Keywords    string `gorm:"type:text"`
	Description string `gorm:"type:text"`
	Slug        string `gorm:"type:varchar(500);index"`
	UpdatedAt   time.Time
}

func (ProductSEO) TableName() string { return "product_seo" }

type Setting struct {
	Key       string `gorm:"primaryKey;type:varchar(100)"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}
