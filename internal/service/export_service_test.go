package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
	"github.com/pulseworks/pulse-api/pkg/storage"
)

type snapshotProviderStub struct {
	report *dto.ReportResponse
	err    error
}

func (s snapshotProviderStub) Latest(ctx context.Context, surveyID string) (*dto.ReportResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func newExportFixture(t *testing.T, provider snapshotProvider) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(provider, store, signer, ExportServiceConfig{Workers: 1}, nil)
}

func TestExportRequestFailsFastWithoutSnapshot(t *testing.T) {
	svc := newExportFixture(t, snapshotProviderStub{err: appErrors.Clone(appErrors.ErrNotFound, "no report")})
	_, err := svc.Request(context.Background(), "survey-1", dto.ExportRequest{Format: "csv"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportStatusUnknownID(t *testing.T) {
	svc := newExportFixture(t, snapshotProviderStub{})
	_, err := svc.Status("nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportRendersAndDownloads(t *testing.T) {
	report := &dto.ReportResponse{
		SurveyID: "survey-1",
		Aggregates: models.ReportAggregates{
			Summary: models.ReportSummary{TotalResponses: 10, ResponseRate: 50, ENPS: 20, NPSAnswerCount: 10},
			Questions: []models.QuestionAggregate{
				{
					QuestionID: "q-1", SectionID: "sec-1", Prompt: "Satisfied?",
					Type: models.QuestionLikert, Respondents: 10,
					Scale: &models.ScaleStats{Count: 10, Mean: 3.8, Median: 4, Min: 1, Max: 5},
				},
			},
		},
	}
	svc := newExportFixture(t, snapshotProviderStub{report: report})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	resp, err := svc.Request(ctx, "survey-1", dto.ExportRequest{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, ExportStatusPending, resp.Status)

	var status *dto.ExportResponse
	require.Eventually(t, func() bool {
		status, err = svc.Status(resp.ExportID)
		return err == nil && status.Status == ExportStatusReady
	}, 2*time.Second, 10*time.Millisecond, "export should render")
	require.NotEmpty(t, status.URL)

	file, filename, err := svc.Download(status.URL)
	require.NoError(t, err)
	defer file.Close()
	assert.Contains(t, filename, "survey-1")

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "response_rate")
	assert.Contains(t, string(data), "Satisfied?")
}

func TestExportStatusCarriesFailureReason(t *testing.T) {
	report := &dto.ReportResponse{SurveyID: "survey-1"}
	svc := newExportFixture(t, snapshotProviderStub{report: report})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	resp, err := svc.Request(ctx, "survey-1", dto.ExportRequest{Format: "xml"})
	require.NoError(t, err, "format is validated at the edge, not here")

	var status *dto.ExportResponse
	require.Eventually(t, func() bool {
		status, err = svc.Status(resp.ExportID)
		return err == nil && status.Status == ExportStatusFailed
	}, 2*time.Second, 10*time.Millisecond, "render should fail")
	assert.Contains(t, status.Error, "unsupported format")
	assert.Empty(t, status.URL)
}

func TestDatasetFromAggregatesMarksSuppression(t *testing.T) {
	dataset := datasetFromAggregates(models.ReportAggregates{
		Summary: models.ReportSummary{TotalResponses: 3, ResponseRate: 30},
		Questions: []models.QuestionAggregate{
			{QuestionID: "q-1", Prompt: "Team?", Type: models.QuestionSingle, Respondents: 3, Suppressed: true},
			{QuestionID: "q-2", Prompt: "Color?", Type: models.QuestionSingle, Respondents: 6,
				Frequencies: map[string]int{"red": 4, "blue": 2}},
		},
	})

	var suppressed, red bool
	for _, row := range dataset.Rows {
		if row["question"] == "Team?" {
			assert.Equal(t, "suppressed", row["metric"], "suppressed cells export only the marker")
			suppressed = true
		}
		if row["question"] == "Color?" && row["metric"] == "red" {
			assert.Equal(t, "4", row["value"])
			red = true
		}
	}
	assert.True(t, suppressed)
	assert.True(t, red)
}

func TestDownloadRejectsTamperedToken(t *testing.T) {
	svc := newExportFixture(t, snapshotProviderStub{})
	_, _, err := svc.Download("not-a-valid-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
