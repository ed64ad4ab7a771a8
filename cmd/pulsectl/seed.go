package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/repository"
	"github.com/pulseworks/pulse-api/internal/service"
	"github.com/pulseworks/pulse-api/pkg/database"
)

func seedCmd() *cobra.Command {
	var responseCount int
	var publish bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the demo engagement survey, optionally with synthetic responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := loadEnv()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			surveyRepo := repository.NewSurveyRepository(db)
			responseRepo := repository.NewResponseRepository(db)
			inviteRepo := repository.NewInviteRepository(db)

			surveySvc := service.NewSurveyService(surveyRepo, nil, logr, service.SurveyServiceConfig{
				DefaultKThreshold:  cfg.Surveys.DefaultKThreshold,
				DefaultPublishDays: cfg.Surveys.DefaultPublishDays,
			})
			responseSvc := service.NewResponseService(surveyRepo, responseRepo, inviteRepo, logr)

			ctx := context.Background()
			survey, err := surveySvc.CreateFromDocument(ctx, balancedHonestyDocument(), "pulsectl-seed")
			if err != nil {
				return fmt.Errorf("create survey: %w", err)
			}
			logr.Info("seeded survey", zap.String("survey_id", survey.ID), zap.String("title", survey.Title))

			if !publish && responseCount == 0 {
				return nil
			}

			if _, err := surveySvc.Transition(ctx, survey.ID, models.SurveyStatusPublished); err != nil {
				return fmt.Errorf("publish survey: %w", err)
			}

			seeded, err := surveySvc.Get(ctx, survey.ID)
			if err != nil {
				return fmt.Errorf("reload survey: %w", err)
			}
			for i := 0; i < responseCount; i++ {
				identity := fmt.Sprintf("seed-user-%03d", i)
				req := syntheticSubmission(seeded, i)
				if _, err := responseSvc.Submit(ctx, seeded.ID, &identity, "", req); err != nil {
					return fmt.Errorf("submit synthetic response %d: %w", i, err)
				}
			}
			if responseCount > 0 {
				logr.Info("seeded synthetic responses", zap.Int("count", responseCount))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&responseCount, "responses", 0, "number of synthetic responses to submit")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the survey after seeding")
	return cmd
}

// balancedHonestyDocument is the demo survey: scale questions stay fully
// anonymous, free text runs in escrow so respondents can opt in to
// follow-ups without being named by default.
func balancedHonestyDocument() dto.SurveyDocument {
	optional := false
	return dto.SurveyDocument{
		Title:       "Balanced Honesty",
		Description: "Quarterly engagement pulse. Scores are anonymous; comments are held in escrow unless you opt in.",
		Sections: []dto.SectionDocument{
			{
				Title: "How it feels to work here",
				Questions: []dto.QuestionDocument{
					{
						Type:          models.QuestionNPS,
						Prompt:        "How likely are you to recommend working here to a friend?",
						AnonymityMode: models.AnonymityAnonymous,
					},
					{
						Type:          models.QuestionLikert,
						Prompt:        "I can be honest with my manager without fear of consequences.",
						AnonymityMode: models.AnonymityAnonymous,
					},
					{
						Type:          models.QuestionLikert,
						Prompt:        "My workload is sustainable.",
						AnonymityMode: models.AnonymityAnonymous,
					},
				},
			},
			{
				Title: "Team and tools",
				Questions: []dto.QuestionDocument{
					{
						Type:          models.QuestionSingle,
						Prompt:        "Which area needs the most investment?",
						Options:       []string{"Tooling", "Process", "Communication", "Training"},
						AnonymityMode: models.AnonymityAnonymous,
					},
					{
						Type:          models.QuestionMulti,
						Prompt:        "Which of these slow you down? Pick all that apply.",
						Options:       []string{"Meetings", "Approvals", "Flaky CI", "Unclear priorities"},
						Required:      &optional,
						AnonymityMode: models.AnonymityAnonymous,
					},
				},
			},
			{
				Title: "In your own words",
				Questions: []dto.QuestionDocument{
					{
						Type:          models.QuestionLongText,
						Prompt:        "What is one thing we should change this quarter?",
						Required:      &optional,
						AnonymityMode: models.AnonymityEscrow,
					},
					{
						Type:          models.QuestionShortText,
						Prompt:        "Anything you want leadership to hear, on the record?",
						Required:      &optional,
						AnonymityMode: models.AnonymitySigned,
					},
				},
			},
		},
	}
}

// syntheticSubmission fabricates plausible answers for every required
// question, varying with the respondent index so reports have spread.
func syntheticSubmission(survey *models.Survey, seed int) dto.SubmitRequest {
	departments := []string{"engineering", "sales", "support", "ops"}
	req := dto.SubmitRequest{
		Cohort: models.CohortTags{"department": departments[seed%len(departments)]},
	}

	for _, section := range survey.Sections {
		for _, question := range section.Questions {
			payload := dto.AnswerPayload{QuestionID: question.ID}
			switch question.Type {
			case models.QuestionNPS:
				score := float64((seed*3)%11 + question.ScaleMin)
				if score > float64(question.ScaleMax) {
					score = float64(question.ScaleMax)
				}
				payload.Number = &score
			case models.QuestionLikert, models.QuestionNumber:
				score := float64(question.ScaleMin + seed%(question.ScaleMax-question.ScaleMin+1))
				payload.Number = &score
			case models.QuestionSingle:
				payload.Selected = []string{question.Options.Choices[seed%len(question.Options.Choices)]}
			case models.QuestionMulti:
				if seed%2 == 0 {
					payload.Selected = []string{question.Options.Choices[seed%len(question.Options.Choices)]}
				} else if question.Required {
					payload.Selected = question.Options.Choices[:1]
				} else {
					continue
				}
			case models.QuestionShortText, models.QuestionLongText:
				if !question.Required && seed%3 != 0 {
					continue
				}
				text := fmt.Sprintf("Synthetic comment %d for %q.", seed, question.Prompt)
				payload.Text = &text
				if question.AnonymityMode == models.AnonymityEscrow && seed%4 == 0 {
					payload.FollowupOptIn = true
					payload.PreferredContact = fmt.Sprintf("seed-user-%03d@example.com", seed)
				}
				if question.AnonymityMode == models.AnonymitySigned && seed%5 == 0 {
					payload.IsSigned = true
				}
			case models.QuestionDate:
				date := time.Now().UTC().AddDate(0, 0, -seed).Format("2006-01-02")
				payload.Date = &date
			default:
				continue
			}
			req.Answers = append(req.Answers, payload)
		}
	}
	return req
}
