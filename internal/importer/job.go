// Package importer drives an uploaded exam document pair through the
// parse/render/crop/persist pipeline. Workers claim one pending job at a
// time through a lease on the job record; an expired lease makes a crashed
// worker's job claimable again.
package importer

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/prepworks/examimport/internal/parse"
)

// Status is the lifecycle state of an import job. PUBLISHED is written by the
// external publish action; this package never transitions out of it.
type Status string

const (
	StatusParsing        Status = "PARSING"
	StatusReadyToPublish Status = "READY_TO_PUBLISH"
	StatusNeedsReview    Status = "NEEDS_REVIEW"
	StatusFailed         Status = "FAILED"
	StatusPublished      Status = "PUBLISHED"
)

// Pipeline stages, reported for observability only.
const (
	StageClaimed   = "CLAIMED"
	StageAnswers   = "parse-answers"
	StageQuestions = "parse-questions"
	StageRender    = "render-pages"
	StageCrops     = "compute-and-apply-crops"
	StagePersist   = "persist-to-storage"
	StageDone      = "DONE"
)

// ErrNoEligibleJob reports that no pending job could be claimed this poll.
// A lost claim race surfaces the same way; neither is an error condition.
var ErrNoEligibleJob = errors.New("no eligible job")

// Job is the persisted import job record. The external upload layer creates
// it in PARSING with the two document buffers already written to disk; this
// package owns stage, progress, lock fields and the terminal status.
type Job struct {
	ID        string
	ExamTitle string
	Status    Status
	Stage     string
	Progress  int

	LockOwner string
	LockedAt  *time.Time
	Attempts  int

	Errors   []string
	Warnings []string

	Manifest json.RawMessage

	QuestionDocPath string
	AnswerDocPath   string
	QuestionDocSum  string
	AnswerDocSum    string

	CreatedAt time.Time
}

// QuestionRow is the persisted result for one question of a job.
type QuestionRow struct {
	Number     int
	Stem       string
	Choices    *parse.Choices
	Answer     string
	SourcePage int

	PageImage    string
	CropImage    string
	CropFallback bool

	Warnings []string
}
