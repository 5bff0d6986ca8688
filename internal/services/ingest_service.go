// Package services – IngestService
//
// This file implements IngestService, the ingestion coordinator. It owns the
// lifecycle of a meal log: it validates the submission, runs the hedged
// provider analysis under the idempotency guard, resolves the translation
// variant for the submitter's locale, persists the analyzed log, and either
// finalizes it directly or proposes slot candidates for the client to choose
// from. It is the only component that advances a log through its states.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// log/user identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nutrilog/go-meal-backend/internal/ai"
	"github.com/nutrilog/go-meal-backend/internal/domain"
	"github.com/nutrilog/go-meal-backend/internal/hedge"
	"github.com/nutrilog/go-meal-backend/internal/idempotency"
	"github.com/nutrilog/go-meal-backend/internal/nutrition"
	"github.com/nutrilog/go-meal-backend/internal/repo"
)

// Dedup is the idempotency contract required by IngestService. The
// production implementation is *idempotency.Guard.
type Dedup interface {
	Do(ctx context.Context, userID, key string, fn idempotency.ExecFunc) (logID string, dup bool, err error)
}

// SubmitInput is one validated-or-not meal submission.
type SubmitInput struct {
	UserID         string
	Message        string
	Image          []byte
	Locale         string
	IdempotencyKey string
}

// SubmitResult is the outcome of a submission: the persisted log, plus its
// open slot candidates when the log awaits a choice. Duplicate is true when
// the outcome came from an earlier submission with the same idempotency key.
type SubmitResult struct {
	Log        *domain.MealLog
	Candidates []domain.SlotCandidate
	Duplicate  bool
}

// IngestService coordinates meal submissions end to end.
type IngestService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Analyzer performs one provider analysis attempt.
	Analyzer ai.Analyzer
	// Guard deduplicates submissions per (user, idempotency key).
	Guard Dedup
	// Policy is the hedging policy applied to every analysis.
	Policy hedge.Policy

	// DefaultLocale is used when the submission carries no locale.
	DefaultLocale string
	// MaxImageBytes caps the accepted image size; 0 disables the check.
	MaxImageBytes int64

	// Now is the clock used for slot inference; tests inject a fixed one.
	Now func() time.Time
}

// Submit validates input and runs the guarded, hedged analysis. Validation
// failures return before any idempotency record or log row is created.
func (s *IngestService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.Bool("has_image", len(in.Image) > 0),
		),
	)
	defer span.End()

	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" && len(in.Image) == 0 {
		return nil, ErrEmptyInput
	}
	if s.MaxImageBytes > 0 && int64(len(in.Image)) > s.MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	if strings.TrimSpace(in.Locale) == "" {
		in.Locale = s.DefaultLocale
	}

	logID, dup, err := s.Guard.Do(ctx, in.UserID, in.IdempotencyKey, func(ctx context.Context) (string, error) {
		return s.ingest(ctx, in)
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrInFlightElsewhere) {
			return nil, ErrRequestInFlight
		}
		return nil, err
	}

	log, err := repo.GetLog(ctx, s.DB, logID, in.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	out := &SubmitResult{Log: log, Duplicate: dup}
	if log.Status == domain.StatusAwaitingSlotChoice {
		cands, err := repo.ListCandidates(ctx, s.DB, log.ID)
		if err != nil {
			return nil, err
		}
		out.Candidates = cands
	}
	return out, nil
}

// ingest is the guarded execution: it creates the log, runs the hedge, and
// commits the analysis. It returns the log ID on success.
func (s *IngestService) ingest(ctx context.Context, in SubmitInput) (string, error) {
	log := &domain.MealLog{
		UserID:    in.UserID,
		Message:   in.Message,
		ImageSize: int64(len(in.Image)),
		Locale:    in.Locale,
		Status:    domain.StatusSubmitted,
	}
	if err := repo.CreateLog(ctx, s.DB, log); err != nil {
		return "", err
	}
	if err := repo.UpdateLogStatus(ctx, s.DB, log.ID, domain.StatusAnalyzing); err != nil {
		return "", err
	}

	res, err := hedge.Do(ctx, s.Policy, func(ctx context.Context, _ int) (*nutrition.AnalysisResult, error) {
		return s.Analyzer.Analyze(ctx, ai.Request{
			Message: in.Message,
			Image:   in.Image,
			Locale:  in.Locale,
		})
	})
	if err != nil {
		// A failed row still records the terminal state; the failure
		// itself is replayed via the idempotency record.
		cctx := context.WithoutCancel(ctx)
		_ = repo.UpdateLogStatus(cctx, s.DB, log.ID, domain.StatusFailed)

		var all *hedge.AllFailedError
		switch {
		case errors.Is(err, hedge.ErrTotalTimeout):
			return "", ErrAnalysisTimeout
		case errors.As(err, &all):
			return "", ErrAnalysisFailed
		}
		return "", err
	}

	return log.ID, s.commitAnalysis(ctx, log, res)
}

// commitAnalysis resolves the locale variant, persists the analysis fields,
// and either finalizes the log or opens slot candidates.
func (s *IngestService) commitAnalysis(ctx context.Context, log *domain.MealLog, res *nutrition.AnalysisResult) error {
	resolved := nutrition.Resolve(res, log.Locale)

	log.Dish = resolved.Dish
	log.Confidence = nutrition.DefaultConfidence
	if resolved.Confidence != nil {
		log.Confidence = *resolved.Confidence
	}
	log.Kcal = resolved.Totals.Kcal
	log.ProteinG = resolved.Totals.ProteinG
	log.FatG = resolved.Totals.FatG
	log.CarbsG = resolved.Totals.CarbsG
	log.Items = nutrition.ItemList(resolved.Items)
	log.Warnings = nutrition.StringList(resolved.Warnings)
	if raw, err := json.Marshal(res); err == nil {
		log.RawResponse = string(raw)
	}

	cands := s.proposeSlots(log.ID, resolved)
	if len(cands) == 1 {
		// Sole plausible placement: auto-select it and finalize.
		cands[0].Chosen = true
		log.Status = domain.StatusFinalized
	} else {
		log.Status = domain.StatusAwaitingSlotChoice
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateCandidates(ctx, tx, cands); err != nil {
			return err
		}
		if log.Status == domain.StatusFinalized {
			log.SlotID = cands[0].ID
		}
		return repo.SaveLogAnalysis(ctx, tx, log)
	})
}

// proposeSlots builds the candidate placements for an analysis. A known
// landing type yields the single matching bucket; otherwise the two
// plausible buckets around the submission clock time are proposed.
func (s *IngestService) proposeSlots(logID string, res *nutrition.AnalysisResult) []domain.SlotCandidate {
	if res.LandingType != nil && domain.ValidSlot(*res.LandingType) {
		return []domain.SlotCandidate{{
			LogID: logID,
			Slot:  *res.LandingType,
			Label: slotLabel(*res.LandingType),
		}}
	}

	primary := slotForHour(s.now().Hour())
	secondary := domain.SlotSnack
	if primary == domain.SlotSnack {
		secondary = domain.SlotDinner
	}
	return []domain.SlotCandidate{
		{LogID: logID, Slot: primary, Label: slotLabel(primary)},
		{LogID: logID, Slot: secondary, Label: slotLabel(secondary)},
	}
}

// ChooseSlot finalizes a log awaiting selection with one of its own
// candidates. Choosing against a finalized or unknown log fails rather than
// silently succeeding.
func (s *IngestService) ChooseSlot(ctx context.Context, userID, logID, slotID string) (*domain.MealLog, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "ChooseSlot",
		trace.WithAttributes(
			attribute.String("log.id", logID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	log, err := repo.GetLog(ctx, s.DB, logID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	if log.Status != domain.StatusAwaitingSlotChoice {
		return nil, ErrInvalidState
	}
	if _, err := repo.GetCandidate(ctx, s.DB, logID, slotID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkCandidateChosen(ctx, tx, logID, slotID); err != nil {
			return err
		}
		res := tx.WithContext(ctx).
			Model(&domain.MealLog{}).
			Where("id = ? AND status = ?", logID, domain.StatusAwaitingSlotChoice).
			Updates(map[string]any{
				"status":  domain.StatusFinalized,
				"slot_id": slotID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost a race with a concurrent choice.
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return repo.GetLog(ctx, s.DB, logID, userID)
}

// ListPage returns paginated log summaries for a user, newest first.
// It applies defaults for invalid page/pageSize and returns total count.
func (s *IngestService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.LogSummary, int64, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountLogs(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.LogSummary{}, 0, nil
	}

	items, err := repo.ListLogsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Stats returns the (count, max updated_at) pair for a user's logs, used by
// the HTTP layer for weak ETags.
func (s *IngestService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.LogsStats(ctx, s.DB, userID)
}

func (s *IngestService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// slotForHour maps a local clock hour to the most plausible meal bucket.
func slotForHour(h int) string {
	switch {
	case h >= 5 && h < 11:
		return domain.SlotBreakfast
	case h >= 11 && h < 16:
		return domain.SlotLunch
	case h >= 16 && h < 22:
		return domain.SlotDinner
	}
	return domain.SlotSnack
}

// slotLabel is the client-facing label of a bucket.
func slotLabel(slot string) string {
	switch slot {
	case domain.SlotBreakfast:
		return "Breakfast"
	case domain.SlotLunch:
		return "Lunch"
	case domain.SlotDinner:
		return "Dinner"
	case domain.SlotSnack:
		return "Snack"
	}
	return slot
}
