package job

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/middleware"
)

var validate = validator.New()

// validateJobConfig decodes raw into the typed config of jobType and checks it
// against totalItems.
func validateJobConfig(jobType config.JobType, raw []byte, totalItems int) (dto.JobConfig, error) {
	cfg, err := dto.DecodeJobConfig(jobType, raw)
	if err != nil {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: "invalid config format",
			Fields:  map[string]any{"config": err.Error()},
			Err:     common.ErrValidation,
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: "config validation failed",
			Fields:  middleware.FormatValidationErrors(err),
			Err:     common.ErrValidation,
		}
	}

	if n := len(cfg.ItemIDs()); n != totalItems {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: "totalItems does not match config.urunIds",
			Fields: map[string]any{
				"totalItems": totalItems,
				"urunIds":    n,
			},
			Err: common.ErrValidation,
		}
	}

	return cfg, nil
}
