package main

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/noah-isme/scholarship-api/internal/app"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
)

// uuidArgs requires exactly n positional arguments, each a UUID.
func uuidArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return codeError(2, "accepts %d arg(s), received %d", n, len(args))
		}
		for _, arg := range args {
			if _, err := uuid.Parse(arg); err != nil {
				return codeError(2, "%q is not a valid id", arg)
			}
		}
		return nil
	}
}

type periodFlags struct {
	month        int
	academicYear string
	semester     string
}

func (p *periodFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&p.month, "month", 0, "Calendar month, 1-12")
	f.StringVar(&p.academicYear, "academic-year", "", "Academic year, e.g. 2025-2026")
	f.StringVar(&p.semester, "semester", "", "first, second or summer")
	_ = cmd.MarkFlagRequired("month")
	_ = cmd.MarkFlagRequired("academic-year")
	_ = cmd.MarkFlagRequired("semester")
}

func (p periodFlags) period() service.StipendPeriod {
	return service.StipendPeriod{Month: p.month, AcademicYear: p.academicYear, Semester: models.Semester(p.semester)}
}

func newFundCommand(s *session) *cobra.Command {
	fund := &cobra.Command{Use: "fund", Short: "Manage fund pools"}

	var (
		source, year, semester, amount string
	)
	allocate := &cobra.Command{
		Use:   "allocate",
		Short: "Add budget to a fund pool for one term",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return codeError(3, "invalid amount %q", amount)
			}
			return s.withContainer(cmd.Context(), func(c *app.Container, actor *models.Actor) error {
				pool, err := c.Services.Stipends.AllocateFund(cmd.Context(), service.AllocateFundRequest{
					FundSource:   source,
					AcademicYear: year,
					Semester:     models.Semester(semester),
					Amount:       value,
				}, actor)
				if err != nil {
					return err
				}
				return s.print(pool)
			})
		},
	}
	f := allocate.Flags()
	f.StringVar(&source, "source", "", "Fund source, e.g. special_trust_fund")
	f.StringVar(&year, "academic-year", "", "Academic year, e.g. 2025-2026")
	f.StringVar(&semester, "semester", "", "first, second or summer")
	f.StringVar(&amount, "amount", "", "Amount to add")
	for _, name := range []string{"source", "academic-year", "semester", "amount"} {
		_ = allocate.MarkFlagRequired(name)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show every fund pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withContainer(cmd.Context(), func(c *app.Container, actor *models.Actor) error {
				pools, err := c.Services.Stipends.ListFunds(cmd.Context(), actor)
				if err != nil {
					return err
				}
				return s.print(pools)
			})
		},
	}

	fund.AddCommand(allocate, list)
	return fund
}

func newStipendCommand(s *session) *cobra.Command {
	stipend := &cobra.Command{Use: "stipend", Short: "Release stipends"}

	var period periodFlags
	batch := &cobra.Command{
		Use:   "release-batch <scholarship-id>",
		Short: "Release one month for every approved application of a scholarship",
		Args:  uuidArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withContainer(cmd.Context(), func(c *app.Container, actor *models.Actor) error {
				items, err := c.Services.Stipends.ReleaseBatch(cmd.Context(), service.BatchReleaseRequest{
					ScholarshipID: args[0],
					Period:        period.period(),
				}, actor)
				if err != nil {
					return err
				}
				failed := 0
				for _, item := range items {
					if item.Error != "" {
						failed++
					}
				}
				if err := s.print(items); err != nil {
					return err
				}
				if failed > 0 {
					return codeError(4, "%d of %d releases failed", failed, len(items))
				}
				return nil
			})
		},
	}
	period.bind(batch)

	stipend.AddCommand(batch)
	return stipend
}

func newEligibilityCommand(s *session) *cobra.Command {
	eligibility := &cobra.Command{Use: "eligibility", Short: "Evaluate eligibility rules"}

	check := &cobra.Command{
		Use:   "check <student-profile-id> <scholarship-id>",
		Short: "Evaluate a student against a scholarship",
		Args:  uuidArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withContainer(cmd.Context(), func(c *app.Container, actor *models.Actor) error {
				result, err := c.Services.Eligibility.CheckForActor(cmd.Context(), args[0], args[1], actor)
				if err != nil {
					return err
				}
				return s.print(result)
			})
		},
	}

	eligibility.AddCommand(check)
	return eligibility
}
