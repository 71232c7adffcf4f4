package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/gosimple/slug"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/rewriter"
)

var errNoRewrite = errors.New("rewriter returned no result")

// CategoryProcessor assigns a catalog category from the product name.
type CategoryProcessor struct {
	products   ProductStore
	classifier Classifier
}

func NewCategoryProcessor(products ProductStore, c Classifier) *CategoryProcessor {
	return &CategoryProcessor{products: products, classifier: c}
}

func (p *CategoryProcessor) JobType() config.JobType { return config.JobTypeCategory }

func (p *CategoryProcessor) Paced() bool { return false }

func (p *CategoryProcessor) Begin(_ context.Context, cfg dto.JobConfig) (ItemFunc, error) {
	c, ok := cfg.(*dto.CategoryJobConfig)
	if !ok {
		return nil, fmt.Errorf("category processor: unexpected config %T", cfg)
	}

	return func(ctx context.Context, id uint) (ItemOutcome, error) {
		product, err := p.products.Get(ctx, id)
		if err != nil {
			return ItemOutcome{}, err
		}

		if c.OnlyUncategorized && product.Category != "" && product.Category != config.UncategorizedCategory {
			return ItemOutcome{Skipped: true, Category: product.Category}, nil
		}

		category := classify(p.classifier, product.Name)
		if err := p.products.UpdateCategory(ctx, id, category); err != nil {
			return ItemOutcome{}, err
		}
		return ItemOutcome{Category: category}, nil
	}, nil
}

// SeoProcessor rewrites product copy through the AI rewriter and stores it.
type SeoProcessor struct {
	products   ProductStore
	classifier Classifier
	rewriter   Rewriter
	settings   SettingsLoader
}

func NewSeoProcessor(products ProductStore, c Classifier, rw Rewriter, s SettingsLoader) *SeoProcessor {
	return &SeoProcessor{products: products, classifier: c, rewriter: rw, settings: s}
}

func (p *SeoProcessor) JobType() config.JobType { return config.JobTypeSeo }

func (p *SeoProcessor) Paced() bool { return true }

func (p *SeoProcessor) Begin(ctx context.Context, cfg dto.JobConfig) (ItemFunc, error) {
	c, ok := cfg.(*dto.SeoJobConfig)
	if !ok {
		return nil, fmt.Errorf("seo processor: unexpected config %T", cfg)
	}

	s, err := p.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s.APIKey == "" {
		return nil, rewriter.ErrMissingAPIKey
	}
	creds := s.Credentials()

	return func(ctx context.Context, id uint) (ItemOutcome, error) {
		product, err := p.products.Get(ctx, id)
		if err != nil {
			return ItemOutcome{}, err
		}

		if c.SkipExisting {
			has, err := p.products.HasSEO(ctx, id)
			if err != nil {
				return ItemOutcome{}, err
			}
			if has {
				return ItemOutcome{Skipped: true}, nil
			}
		}

		res, err := p.rewriter.Rewrite(ctx, product.Name, creds)
		if err != nil {
			return ItemOutcome{}, err
		}
		if res == nil {
			return ItemOutcome{}, errNoRewrite
		}

		category := res.Category
		if category == "" {
			category = classify(p.classifier, product.Name)
		}
		slugText := res.Slug
		if slugText == "" {
			slugText = slug.MakeLang(res.Title, "tr")
		}

		if err := p.products.UpsertSEO(ctx, &models.ProductSEO{
			ProductID:   id,
			Title:       res.Title,
			Keywords:    res.Keywords,
			Description: res.Description,
			Slug:        slugText,
		}); err != nil {
			return ItemOutcome{}, err
		}
		if err := p.products.UpdateCategory(ctx, id, category); err != nil {
			return ItemOutcome{}, err
		}
		if c.RenameProducts {
			if err := p.products.Rename(ctx, id, res.Title); err != nil {
				return ItemOutcome{}, err
			}
		}

		return ItemOutcome{Category: category, Title: res.Title, Slug: slugText}, nil
	}, nil
}

func classify(c Classifier, name string) string {
	if m := c.Classify(name); m != nil {
		return m.Category
	}
	return config.UncategorizedCategory
}
