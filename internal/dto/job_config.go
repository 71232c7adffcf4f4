package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
)

// JobConfig is the decoded work description of a job.
type JobConfig interface {
	ItemIDs() []uint
}

type CategoryJobConfig struct {
	ProductIDs        []uint `json:"urunIds" validate:"required,min=1,dive,gt=0"`
	OnlyUncategorized bool   `json:"onlyUncategorized,omitempty"`
}

func (c *CategoryJobConfig) ItemIDs() []uint { return c.ProductIDs }

type SeoJobConfig struct {
	ProductIDs     []uint `json:"urunIds" validate:"required,min=1,dive,gt=0"`
	SkipExisting   bool   `json:"skipExisting,omitempty"`
	RenameProducts bool   `json:"renameProducts,omitempty"`
}

func (c *SeoJobConfig) ItemIDs() []uint { return c.ProductIDs }

// DecodeJobConfig decodes raw into the config type of jobType. Unknown fields are rejected.
func DecodeJobConfig(jobType config.JobType, raw []byte) (JobConfig, error) {
	var cfg JobConfig
	switch jobType {
	case config.JobTypeCategory:
		cfg = &CategoryJobConfig{}
	case config.JobTypeSeo:
		cfg = &SeoJobConfig{}
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", jobType, err)
	}
	return cfg, nil
}
