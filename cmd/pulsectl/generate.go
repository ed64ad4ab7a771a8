package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/repository"
	"github.com/pulseworks/pulse-api/internal/service"
	"github.com/pulseworks/pulse-api/pkg/database"
)

func generateCmd() *cobra.Command {
	var goals, audience, tone string
	var create bool

	cmd := &cobra.Command{
		Use:   "generate <topic>",
		Short: "Generate a survey document from a topic brief",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := loadEnv()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			generator := service.NewGenerator(service.GeneratorConfig{
				BaseURL: cfg.Generator.BaseURL,
				APIKey:  cfg.Generator.APIKey,
				Model:   cfg.Generator.Model,
				Timeout: cfg.Generator.Timeout,
			}, logr)

			ctx := context.Background()
			doc, err := generator.Generate(ctx, dto.GenerateRequest{
				Topic:    args[0],
				Goals:    goals,
				Audience: audience,
				Tone:     tone,
			})
			if err != nil {
				return fmt.Errorf("generate document: %w", err)
			}

			if !create {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(doc)
			}

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			surveySvc := service.NewSurveyService(repository.NewSurveyRepository(db), nil, logr, service.SurveyServiceConfig{
				DefaultKThreshold:  cfg.Surveys.DefaultKThreshold,
				DefaultPublishDays: cfg.Surveys.DefaultPublishDays,
			})
			survey, err := surveySvc.CreateFromDocument(ctx, doc, "pulsectl-generate")
			if err != nil {
				return fmt.Errorf("create survey: %w", err)
			}
			logr.Info("draft survey created", zap.String("survey_id", survey.ID), zap.String("title", survey.Title))
			return nil
		},
	}

	cmd.Flags().StringVar(&goals, "goals", "", "what the survey should find out")
	cmd.Flags().StringVar(&audience, "audience", "", "who will answer it")
	cmd.Flags().StringVar(&tone, "tone", "", "tone of voice for prompts")
	cmd.Flags().BoolVar(&create, "create", false, "persist the document as a draft survey instead of printing it")
	return cmd
}
