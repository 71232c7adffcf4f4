package dto

type WorkerRunDTO struct {
	JobID         uint `json:"jobId" validate:"required,gt=0"`
	BatchSize     int  `json:"batchSize" validate:"gte=0"`
	ParallelCount int  `json:"parallelCount" validate:"gte=0"`
}

// BatchResultDTO counts one batch. Processed counts successes only.
type BatchResultDTO struct {
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
	LastError string `json:"lastError,omitempty"`
}

type ItemResultDTO struct {
	ProductID uint   `json:"urunId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Category  string `json:"category,omitempty"`
	Title     string `json:"title,omitempty"`
	Slug      string `json:"slug,omitempty"`
}

type BatchResponseDTO struct {
	Job            *JobResponseDTO `json:"job"`
	BatchResult    BatchResultDTO  `json:"batchResult"`
	Results        []ItemResultDTO `json:"results"`
	IsCompleted    bool            `json:"isCompleted"`
	ShouldContinue bool            `json:"shouldContinue"`
	Busy           bool            `json:"busy,omitempty"`
	Discarded      bool            `json:"discarded,omitempty"`
	Message        string          `json:"message,omitempty"`
}

type ActiveJobResponseDTO struct {
	ActiveJob *JobResponseDTO `json:"activeJob"`
}
