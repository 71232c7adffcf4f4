package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/job"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List, create and control jobs",
}

var (
	listStatus  string
	listJobType string

	createType              string
	createIDs               []uint
	createOnlyUncategorized bool
	createSkipExisting      bool
	createRename            bool
)

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the newest jobs and the active one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(s *job.JobService) error {
			resp, err := s.ListJobs(cmd.Context(), models.JobFilter{
				Status:  config.JobStatus(listStatus),
				JobType: config.JobType(listJobType),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		})
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		return withService(cmd, func(s *job.JobService) error {
			resp, err := s.GetJobByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		})
	},
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending job over a list of product IDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildCreateRequest(config.JobType(createType), createIDs)
		if err != nil {
			return err
		}
		return withService(cmd, func(s *job.JobService) error {
			resp, err := s.CreateJob(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		})
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a job that is not running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		return withService(cmd, func(s *job.JobService) error {
			if err := s.DeleteJob(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %d deleted\n", id)
			return nil
		})
	},
}

// transitionCmd builds the start, pause, resume and cancel subcommands.
func transitionCmd(action config.JobAction) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " [id]",
		Short: fmt.Sprintf("Apply the %s action to a job", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, func(s *job.JobService) error {
				resp, err := s.Transition(cmd.Context(), id, action)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
}

func init() {
	jobsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	jobsListCmd.Flags().StringVar(&listJobType, "type", "", "Filter by job type")

	jobsCreateCmd.Flags().StringVar(&createType, "type", "", "Job type (category_processing, seo_processing)")
	jobsCreateCmd.Flags().UintSliceVar(&createIDs, "ids", nil, "Comma separated product IDs")
	jobsCreateCmd.Flags().BoolVar(&createOnlyUncategorized, "only-uncategorized", false, "Category jobs: skip products that already have a category")
	jobsCreateCmd.Flags().BoolVar(&createSkipExisting, "skip-existing", false, "SEO jobs: skip products that already have SEO data")
	jobsCreateCmd.Flags().BoolVar(&createRename, "rename", false, "SEO jobs: replace the product name with the rewritten title")
	_ = jobsCreateCmd.MarkFlagRequired("type")
	_ = jobsCreateCmd.MarkFlagRequired("ids")

	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsCreateCmd, jobsDeleteCmd)
	for _, action := range []config.JobAction{config.ActionStart, config.ActionPause, config.ActionResume, config.ActionCancel} {
		jobsCmd.AddCommand(transitionCmd(action))
	}
}

// withService runs fn against a controller without a trigger. Started jobs
// advance through the worker binary or "jobctl worker run-batch".
func withService(cmd *cobra.Command, fn func(*job.JobService) error) error {
	a, _, log, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(job.NewJobService(a.Jobs, nil, log))
}

func buildCreateRequest(jobType config.JobType, ids []uint) (*dto.JobCreateDTO, error) {
	var cfg any
	switch jobType {
	case config.JobTypeCategory:
		cfg = dto.CategoryJobConfig{ProductIDs: ids, OnlyUncategorized: createOnlyUncategorized}
	case config.JobTypeSeo:
		cfg = dto.SeoJobConfig{ProductIDs: ids, SkipExisting: createSkipExisting, RenameProducts: createRename}
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode job config: %w", err)
	}
	return &dto.JobCreateDTO{JobType: jobType, Config: raw, TotalItems: len(ids)}, nil
}

func parseJobID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid job ID %q", raw)
	}
	return uint(id), nil
}
