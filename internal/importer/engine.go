package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prepworks/examimport/internal/crop"
	"github.com/prepworks/examimport/internal/parse"
	"github.com/prepworks/examimport/internal/pdfdoc"
	"github.com/prepworks/examimport/internal/profile"
)

// EngineConfig holds the engine dependencies and tunables.
type EngineConfig struct {
	Store          Store
	Reporter       ProgressReporter
	Profiles       *profile.Loader
	StorageRoot    string
	RenderScale    float64
	DefaultProfile string
}

// Engine runs one claimed job through the full import pipeline: answer key,
// question booklet, page rendering, crop computation and persistence.
type Engine struct {
	store          Store
	reporter       ProgressReporter
	profiles       *profile.Loader
	storageRoot    string
	renderScale    float64
	defaultProfile string

	// Seams for tests that run the pipeline without real documents.
	readFile      func(string) ([]byte, error)
	extractText   func([]byte) (string, error)
	extractLayout func([]byte) ([]pdfdoc.PageText, error)
	renderPages   func([]byte, string, float64) ([]pdfdoc.RenderedPage, error)
	cropQuestions func(string, []crop.QuestionCrop, string) (map[int]string, error)
}

// NewEngine creates an import engine. Store and Profiles are required; the
// rest falls back to sensible defaults.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profile loader is required")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	if cfg.RenderScale <= 0 {
		cfg.RenderScale = 2.0
	}
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = "default"
	}
	if cfg.StorageRoot == "" {
		cfg.StorageRoot = os.TempDir()
	}
	return &Engine{
		store:          cfg.Store,
		reporter:       cfg.Reporter,
		profiles:       cfg.Profiles,
		storageRoot:    cfg.StorageRoot,
		renderScale:    cfg.RenderScale,
		defaultProfile: cfg.DefaultProfile,
		readFile:       os.ReadFile,
		extractText:    pdfdoc.ExtractText,
		extractLayout:  pdfdoc.ExtractLayout,
		renderPages:    pdfdoc.RenderPages,
		cropQuestions:  crop.CropQuestions,
	}, nil
}

// Stage progress checkpoints. Values are cumulative percentages.
const (
	progressAnswers   = 10
	progressQuestions = 30
	progressRender    = 55
	progressCrops     = 75
	progressPersist   = 90
)

// Process runs one claimed job to a terminal status. The lease is released on
// return regardless of outcome; a crash before that leaves the lease to
// expire so another worker can pick the job up.
func (e *Engine) Process(ctx context.Context, job *Job) {
	start := time.Now()
	slog.Info("processing import job", "job_id", job.ID, "attempt", job.Attempts)

	defer func() {
		if err := e.store.ReleaseLock(context.WithoutCancel(ctx), job.ID); err != nil {
			slog.Error("failed to release job lock", "job_id", job.ID, "error", err)
		}
	}()

	warnings, err := e.run(ctx, job)
	if err != nil {
		slog.Error("import job failed", "job_id", job.ID, "error", err)
		if ferr := e.store.Finalize(ctx, job.ID, StatusFailed, []string{err.Error()}, warnings); ferr != nil {
			slog.Error("failed to mark job failed", "job_id", job.ID, "error", ferr)
		}
		return
	}

	status := StatusReadyToPublish
	if len(warnings) > 0 {
		status = StatusNeedsReview
	}
	if err := e.store.Finalize(ctx, job.ID, status, nil, warnings); err != nil {
		slog.Error("failed to finalize job", "job_id", job.ID, "error", err)
		return
	}
	e.report(ctx, job.ID, StageDone, 100)
	slog.Info("import job finished",
		"job_id", job.ID, "status", status,
		"warnings", len(warnings), "duration", time.Since(start))
}

func (e *Engine) run(ctx context.Context, job *Job) ([]string, error) {
	var warnings []string

	manifest, err := ParseManifest(job.Manifest)
	if err != nil {
		return nil, err
	}
	prof, err := e.resolveProfile(manifest)
	if err != nil {
		return nil, err
	}

	questionDoc, err := e.readFile(job.QuestionDocPath)
	if err != nil {
		return nil, fmt.Errorf("read question document: %w", err)
	}
	answerDoc, err := e.readFile(job.AnswerDocPath)
	if err != nil {
		return nil, fmt.Errorf("read answer document: %w", err)
	}

	warnings = append(warnings, e.recordFingerprints(ctx, job, questionDoc, answerDoc)...)

	e.report(ctx, job.ID, StageAnswers, progressAnswers)
	answerText, err := e.extractText(answerDoc)
	if err != nil {
		return warnings, fmt.Errorf("extract answer key text: %w", err)
	}
	answers, err := parse.ParseAnswerKey(answerText)
	if err != nil {
		return warnings, fmt.Errorf("parse answer key: %w", err)
	}

	e.report(ctx, job.ID, StageQuestions, progressQuestions)
	questionText, err := e.extractText(questionDoc)
	if err != nil {
		return warnings, fmt.Errorf("extract question text: %w", err)
	}
	layout, err := e.extractLayout(questionDoc)
	if err != nil {
		return warnings, fmt.Errorf("extract question layout: %w", err)
	}
	questions, err := parse.ParseQuestions(questionText, layout, prof)
	if err != nil {
		return warnings, fmt.Errorf("parse questions: %w", err)
	}

	e.report(ctx, job.ID, StageRender, progressRender)
	pagesDir := filepath.Join(e.storageRoot, job.ID, "pages")
	rendered, err := e.renderPages(questionDoc, pagesDir, e.renderScale)
	if err != nil {
		return warnings, fmt.Errorf("render pages: %w", err)
	}

	e.report(ctx, job.ID, StageCrops, progressCrops)
	rows, cropWarnings, err := e.cropAndAssemble(job, prof, questions, answers, layout, rendered)
	if err != nil {
		return warnings, err
	}
	warnings = append(warnings, cropWarnings...)

	e.report(ctx, job.ID, StagePersist, progressPersist)
	if err := e.store.ReplaceQuestions(ctx, job.ID, rows); err != nil {
		return warnings, fmt.Errorf("persist questions: %w", err)
	}

	return warnings, nil
}

func (e *Engine) resolveProfile(manifest Manifest) (profile.Profile, error) {
	name := manifest.Profile
	if name == "" {
		name = e.defaultProfile
	}
	prof, ok := e.profiles.Get(name)
	if !ok {
		return profile.Profile{}, fmt.Errorf("unknown calibration profile: %q", name)
	}
	if manifest.ExpectedQuestions > 0 {
		prof.MaxQuestions = manifest.ExpectedQuestions
	}
	return prof, nil
}

// recordFingerprints stores content checksums and flags re-uploads of a
// document already seen on another job. Fingerprinting is advisory; store
// errors here degrade to a log line instead of failing the job.
func (e *Engine) recordFingerprints(ctx context.Context, job *Job, questionDoc, answerDoc []byte) []string {
	questionSum := pdfdoc.Fingerprint(questionDoc)
	answerSum := pdfdoc.Fingerprint(answerDoc)
	if err := e.store.SetFingerprints(ctx, job.ID, questionSum, answerSum); err != nil {
		slog.Warn("failed to store document fingerprints", "job_id", job.ID, "error", err)
		return nil
	}
	known, err := e.store.FingerprintKnown(ctx, questionSum, job.ID)
	if err != nil {
		slog.Warn("fingerprint lookup failed", "job_id", job.ID, "error", err)
		return nil
	}
	if known {
		return []string{"question document matches a previously imported upload"}
	}
	return nil
}

// cropAndAssemble computes crop boxes per page, cuts the question images and
// builds the final question rows with their per-question warnings.
func (e *Engine) cropAndAssemble(
	job *Job,
	prof profile.Profile,
	questions []parse.ParsedQuestion,
	answers parse.AnswerMap,
	layout []pdfdoc.PageText,
	rendered []pdfdoc.RenderedPage,
) ([]QuestionRow, []string, error) {
	pageText := make(map[int]pdfdoc.PageText, len(layout))
	for _, pt := range layout {
		pageText[pt.Number] = pt
	}
	pageImage := make(map[int]string, len(rendered))
	for _, rp := range rendered {
		pageImage[rp.Number] = rp.Path
	}

	var warnings []string

	// Questions the layout pass could not place land on page 1 so they still
	// get an image, with a warning for the reviewer.
	byPage := make(map[int][]int)
	pageOf := make(map[int]int, len(questions))
	for _, q := range questions {
		page := q.SourcePage
		if page < 1 || page > len(rendered) {
			warnings = append(warnings, fmt.Sprintf("question %d: no page mapping, defaulting to page 1", q.Number))
			page = 1
		}
		byPage[page] = append(byPage[page], q.Number)
		pageOf[q.Number] = page
	}

	cropEngine := crop.NewEngine(prof.Crop, e.renderScale)
	questionsDir := filepath.Join(e.storageRoot, job.ID, "questions")

	cropByNumber := make(map[int]crop.QuestionCrop)
	cropPath := make(map[int]string)
	pages := make([]int, 0, len(byPage))
	for page := range byPage {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	for _, page := range pages {
		numbers := byPage[page]
		sort.Ints(numbers)
		pm := crop.ScanPage(pageText[page], prof, e.renderScale)
		pm.Page = page
		crops := cropEngine.Compute(pm, numbers)
		paths, err := e.cropQuestions(pageImage[page], crops, questionsDir)
		if err != nil {
			return nil, warnings, fmt.Errorf("crop page %d: %w", page, err)
		}
		for _, c := range crops {
			cropByNumber[c.Number] = c
		}
		for number, path := range paths {
			cropPath[number] = path
		}
	}

	rows := make([]QuestionRow, 0, len(questions))
	for _, q := range questions {
		row := QuestionRow{
			Number:     q.Number,
			Stem:       q.Stem,
			Choices:    q.Choices,
			SourcePage: pageOf[q.Number],
			PageImage:  pageImage[pageOf[q.Number]],
			CropImage:  cropPath[q.Number],
		}
		if answer, ok := answers[q.Number]; ok {
			row.Answer = answer
		} else {
			row.Warnings = append(row.Warnings, "missing answer")
		}
		if row.Stem == "" {
			row.Warnings = append(row.Warnings, "missing stem")
		}
		if row.Choices == nil {
			row.Warnings = append(row.Warnings, "missing choices")
		}
		if c, ok := cropByNumber[q.Number]; ok && c.Fallback {
			row.CropFallback = true
			row.Warnings = append(row.Warnings, "fallback crop: "+c.Reason)
		}
		if row.CropImage == "" {
			row.Warnings = append(row.Warnings, "no crop image produced")
		}
		for _, w := range row.Warnings {
			warnings = append(warnings, fmt.Sprintf("question %d: %s", q.Number, w))
		}
		rows = append(rows, row)
	}

	return rows, warnings, nil
}

// report records a stage transition in the store and mirrors it to the
// progress cache. Cache failures are not fatal.
func (e *Engine) report(ctx context.Context, jobID, stage string, progress int) {
	if err := e.store.UpdateProgress(ctx, jobID, stage, progress); err != nil {
		slog.Warn("failed to update job progress", "job_id", jobID, "stage", stage, "error", err)
	}
	if err := e.reporter.Report(ctx, jobID, stage, progress); err != nil {
		slog.Warn("failed to publish job progress", "job_id", jobID, "stage", stage, "error", err)
	}
}
