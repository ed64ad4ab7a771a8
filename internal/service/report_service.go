package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/repository"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

type snapshotRepository interface {
	Create(ctx context.Context, snapshot *models.ReportSnapshot) error
	GetByID(ctx context.Context, id string) (*models.ReportSnapshot, error)
	Latest(ctx context.Context, surveyID string) (*models.ReportSnapshot, error)
	ListBySurvey(ctx context.Context, surveyID string, limit int) ([]models.ReportSnapshot, error)
}

type reportSurveyRepository interface {
	GetWithSchema(ctx context.Context, id string) (*models.Survey, error)
	CountInvites(ctx context.Context, surveyID string) (int, error)
}

type reportResponseRepository interface {
	ListBySurvey(ctx context.Context, surveyID string, filter repository.ResponseFilter) ([]models.Response, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ReportService computes aggregate reports over survey responses,
// enforcing the survey's k-anonymity threshold on every released cell.
type ReportService struct {
	surveys   reportSurveyRepository
	responses reportResponseRepository
	snapshots snapshotRepository
	cache     reportCache
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
	cacheTTL  time.Duration
}

func NewReportService(surveys reportSurveyRepository, responses reportResponseRepository, snapshots snapshotRepository, cache reportCache, cacheTTL time.Duration, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &ReportService{
		surveys:   surveys,
		responses: responses,
		snapshots: snapshots,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		cacheTTL:  cacheTTL,
	}
}

// WithClock overrides the time source for tests.
func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = now
	return s
}

// WithMetrics attaches domain counters.
func (s *ReportService) WithMetrics(metrics *MetricsService) *ReportService {
	s.metrics = metrics
	return s
}

func latestReportKey(surveyID string) string {
	return fmt.Sprintf("reports:survey:%s:latest", surveyID)
}

// Compute aggregates the survey's responses into a new immutable
// snapshot and returns it. Previous snapshots stay available as history.
func (s *ReportService) Compute(ctx context.Context, surveyID, computedBy string, req dto.ReportRequest) (*dto.ReportResponse, error) {
	survey, err := s.surveys.GetWithSchema(ctx, surveyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey")
	}

	responses, err := s.responses.ListBySurvey(ctx, surveyID, repository.ResponseFilter{From: req.From, To: req.To})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load responses")
	}
	invites, err := s.surveys.CountInvites(ctx, surveyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count invites")
	}

	aggregates := aggregate(survey, responses, invites, req)
	s.metrics.RecordCellsSuppressed(countSuppressed(aggregates))

	snapshot := &models.ReportSnapshot{
		SurveyID:     surveyID,
		ComputedAt:   s.now().UTC(),
		ComputedBy:   computedBy,
		Aggregates:   aggregates,
		ResponseRate: aggregates.Summary.ResponseRate,
		ENPS:         aggregates.Summary.ENPS,
	}
	if err := s.snapshots.Create(ctx, snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist snapshot")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, latestReportKey(surveyID), snapshot, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache report snapshot", zap.String("survey_id", surveyID), zap.Error(err))
		}
	}

	s.logger.Info("report computed",
		zap.String("survey_id", surveyID),
		zap.String("snapshot_id", snapshot.ID),
		zap.Int("responses", len(responses)),
		zap.Float64("enps", snapshot.ENPS))

	return snapshotResponse(snapshot), nil
}

// Latest returns the most recent snapshot, served from cache when warm.
func (s *ReportService) Latest(ctx context.Context, surveyID string) (*dto.ReportResponse, error) {
	if s.cache != nil {
		var cached models.ReportSnapshot
		if err := s.cache.Get(ctx, latestReportKey(surveyID), &cached); err == nil {
			return snapshotResponse(&cached), nil
		}
	}

	snapshot, err := s.snapshots.Latest(ctx, surveyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no report has been computed for this survey")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, latestReportKey(surveyID), snapshot, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache report snapshot", zap.String("survey_id", surveyID), zap.Error(err))
		}
	}
	return snapshotResponse(snapshot), nil
}

// History lists prior snapshots, newest first.
func (s *ReportService) History(ctx context.Context, surveyID string, limit int) ([]models.ReportSnapshot, error) {
	snapshots, err := s.snapshots.ListBySurvey(ctx, surveyID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list snapshots")
	}
	return snapshots, nil
}

// Snapshot returns one historical snapshot by id.
func (s *ReportService) Snapshot(ctx context.Context, id string) (*models.ReportSnapshot, error) {
	snapshot, err := s.snapshots.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "snapshot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
	}
	return snapshot, nil
}

func snapshotResponse(snapshot *models.ReportSnapshot) *dto.ReportResponse {
	return &dto.ReportResponse{
		SnapshotID:   snapshot.ID,
		SurveyID:     snapshot.SurveyID,
		ComputedAt:   snapshot.ComputedAt,
		ResponseRate: snapshot.ResponseRate,
		ENPS:         snapshot.ENPS,
		Aggregates:   snapshot.Aggregates,
	}
}

// answerCtx pairs an answer with the response that carried it, so text
// attribution can reach the respondent identity.
type answerCtx struct {
	answer   *models.Answer
	response *models.Response
}

// aggregate runs the pure computation over a loaded survey and response
// set. It has no I/O so the anonymity properties can be tested directly.
func aggregate(survey *models.Survey, responses []models.Response, invites int, req dto.ReportRequest) models.ReportAggregates {
	k := survey.KThreshold
	if k < 1 {
		k = 1
	}

	byQuestion := make(map[string][]answerCtx)
	for ri := range responses {
		for ai := range responses[ri].Answers {
			answer := &responses[ri].Answers[ai]
			byQuestion[answer.QuestionID] = append(byQuestion[answer.QuestionID], answerCtx{answer: answer, response: &responses[ri]})
		}
	}

	summary := models.ReportSummary{
		TotalResponses: len(responses),
		InvitesIssued:  invites,
		From:           req.From,
		To:             req.To,
	}
	if invites > 0 {
		summary.ResponseRate = float64(len(responses)) / float64(invites) * 100
	}

	var promoters, detractors, npsTotal int
	var questions []models.QuestionAggregate

	for si := range survey.Sections {
		section := &survey.Sections[si]
		for qi := range section.Questions {
			question := &section.Questions[qi]
			entries := byQuestion[question.ID]

			agg := models.QuestionAggregate{
				QuestionID:  question.ID,
				SectionID:   section.ID,
				Prompt:      question.Prompt,
				Type:        question.Type,
				Respondents: len(entries),
			}

			if question.Type == models.QuestionNPS {
				for _, e := range entries {
					score := answerNumber(e.answer)
					npsTotal++
					if score >= 9 {
						promoters++
					} else if score <= 6 {
						detractors++
					}
				}
			}

			if len(entries) > 0 && len(entries) < k {
				agg.Suppressed = true
				questions = append(questions, agg)
				continue
			}
			if len(entries) == 0 {
				questions = append(questions, agg)
				continue
			}

			switch {
			case question.IsScale():
				values := make([]float64, 0, len(entries))
				for _, e := range entries {
					values = append(values, answerNumber(e.answer))
				}
				agg.Scale = scaleStats(values)
			case question.IsText():
				agg.Texts = textEntries(question, entries)
			default:
				freq := make(map[string]int)
				for _, e := range entries {
					for _, key := range frequencyKeys(question, e.answer) {
						freq[key]++
					}
				}
				agg.Frequencies = freq
			}
			questions = append(questions, agg)
		}
	}

	if npsTotal > 0 {
		summary.ENPS = float64(promoters-detractors) / float64(npsTotal) * 100
		summary.NPSAnswerCount = npsTotal
	}

	cohorts := cohortBreakdowns(survey, responses, req.CohortKeys, k)

	return models.ReportAggregates{Summary: summary, Questions: questions, Cohorts: cohorts}
}

// textEntries collects free-text answers, attaching identity only where
// the anonymity classifier allows it. Redacted answers are dropped
// entirely rather than shown blanked.
func textEntries(question *models.Question, entries []answerCtx) []models.TextEntry {
	texts := make([]models.TextEntry, 0, len(entries))
	for _, e := range entries {
		if e.answer.ModerationStatus == models.ModerationRedacted {
			continue
		}
		entry := models.TextEntry{
			Text:             e.answer.Value.Text,
			ModerationStatus: e.answer.ModerationStatus,
		}
		if IsAttributable(question, e.answer) {
			switch question.AnonymityMode {
			case models.AnonymitySigned:
				entry.Identity = e.answer.SignedBy
			case models.AnonymityEscrow:
				entry.Identity = e.response.Identity
				entry.PreferredContact = e.answer.PreferredContact
			}
		}
		texts = append(texts, entry)
	}
	return texts
}

// frequencyKeys flattens one answer into countable frequency keys.
// Single/multi choice count each selected option; rankings count the
// first-place pick; matrix answers count row/column pairs; dates count
// the day.
func frequencyKeys(question *models.Question, answer *models.Answer) []string {
	switch question.Type {
	case models.QuestionSingle, models.QuestionMulti:
		return answer.Value.Choices
	case models.QuestionRank:
		if len(answer.Value.Ordering) > 0 {
			return []string{answer.Value.Ordering[0]}
		}
	case models.QuestionDate:
		return []string{answer.Value.Date}
	case models.QuestionMatrix:
		keys := make([]string, 0, len(answer.Value.Matrix))
		for row, col := range answer.Value.Matrix {
			keys = append(keys, row+": "+col)
		}
		sort.Strings(keys)
		return keys
	}
	return nil
}

func countSuppressed(aggregates models.ReportAggregates) int {
	count := 0
	for _, q := range aggregates.Questions {
		if q.Suppressed {
			count++
		}
	}
	for _, breakdown := range aggregates.Cohorts {
		for _, group := range breakdown.Groups {
			if group.Suppressed {
				count++
				continue
			}
			for _, cell := range group.Cells {
				if cell.Suppressed {
					count++
				}
			}
		}
	}
	return count
}

func answerNumber(answer *models.Answer) float64 {
	if answer.Value.Number == nil {
		return 0
	}
	return *answer.Value.Number
}

func scaleStats(values []float64) *models.ScaleStats {
	if len(values) == 0 {
		return nil
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	stats := &models.ScaleStats{
		Count: len(sorted),
		Mean:  sum / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		stats.Median = sorted[mid]
	} else {
		stats.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return stats
}

// cohortBreakdowns groups responses by each requested cohort attribute
// and aggregates scale/choice questions per group. Suppression is
// applied twice: a whole group below k is suppressed, and a joint
// (group x question) cell below k is suppressed even when its marginal
// counts pass. Text questions never appear in cohort cells; small
// free-text cells are too identifying regardless of counts.
func cohortBreakdowns(survey *models.Survey, responses []models.Response, keys []string, k int) []models.CohortBreakdown {
	if len(keys) == 0 {
		return nil
	}

	var breakdowns []models.CohortBreakdown
	for _, key := range keys {
		grouped := make(map[string][]*models.Response)
		for ri := range responses {
			value, ok := responses[ri].Cohort[key]
			if !ok || value == "" {
				continue
			}
			grouped[value] = append(grouped[value], &responses[ri])
		}

		values := make([]string, 0, len(grouped))
		for value := range grouped {
			values = append(values, value)
		}
		sort.Strings(values)

		breakdown := models.CohortBreakdown{Key: key}
		released := 0
		for _, value := range values {
			members := grouped[value]
			group := models.CohortGroup{Value: value, Respondents: len(members)}
			if len(members) < k {
				group.Suppressed = true
				breakdown.Groups = append(breakdown.Groups, group)
				continue
			}
			group.Cells = cohortCells(survey, members, k)
			breakdown.Groups = append(breakdown.Groups, group)
			released++
		}
		breakdown.InsufficientData = released == 0
		breakdowns = append(breakdowns, breakdown)
	}
	return breakdowns
}

func cohortCells(survey *models.Survey, members []*models.Response, k int) []models.CohortCell {
	byQuestion := make(map[string][]*models.Answer)
	for _, response := range members {
		for ai := range response.Answers {
			answer := &response.Answers[ai]
			byQuestion[answer.QuestionID] = append(byQuestion[answer.QuestionID], answer)
		}
	}

	var cells []models.CohortCell
	for si := range survey.Sections {
		for qi := range survey.Sections[si].Questions {
			question := &survey.Sections[si].Questions[qi]
			if question.IsText() {
				continue
			}
			answers := byQuestion[question.ID]
			if len(answers) == 0 {
				continue
			}
			cell := models.CohortCell{QuestionID: question.ID, Respondents: len(answers)}
			if len(answers) < k {
				cell.Suppressed = true
				cells = append(cells, cell)
				continue
			}
			if question.IsScale() {
				values := make([]float64, 0, len(answers))
				for _, answer := range answers {
					values = append(values, answerNumber(answer))
				}
				cell.Scale = scaleStats(values)
			} else {
				freq := make(map[string]int)
				for _, answer := range answers {
					for _, key := range frequencyKeys(question, answer) {
						freq[key]++
					}
				}
				cell.Frequencies = freq
			}
			cells = append(cells, cell)
		}
	}
	return cells
}
