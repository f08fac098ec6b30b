// Package chain runs one natural-language question through the text-to-SQL
// pipeline: select exemplars, build the prompt, ask the model for SQL, execute
// it, and ask the model to phrase the answer.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JonMunkholm/nlq/internal/database"
	apperrors "github.com/JonMunkholm/nlq/internal/errors"
	"github.com/JonMunkholm/nlq/internal/exemplar"
	"github.com/JonMunkholm/nlq/internal/llm"
	"github.com/JonMunkholm/nlq/internal/observability"
	"github.com/JonMunkholm/nlq/internal/prompt"
)

// Sentinel is the only thing a user sees when a question could not be answered.
const Sentinel = "Sorry, I was unable to answer your question."

// Record is the immutable trace of one question.
type Record struct {
	Question string   `json:"question"`
	SQL      string   `json:"sql,omitempty"`
	Result   string   `json:"result,omitempty"`
	Columns  []string `json:"columns,omitempty"`
	Answer   string   `json:"answer"`
	Sentinel bool     `json:"sentinel"`
}

// SentinelRecord is the record appended for a failed question.
func SentinelRecord(question string) Record {
	return Record{Question: question, Answer: Sentinel, Sentinel: true}
}

// Outcome is the tagged result of Invoke. Err is nil exactly when State is Done.
type Outcome struct {
	Record Record
	State  State
	// Reached is the last state completed before a failure.
	Reached  State
	Err      *apperrors.E
	Duration time.Duration
}

func (o Outcome) OK() bool { return o.State == Done }

// ExemplarSelector picks the exemplars closest to a question.
type ExemplarSelector interface {
	SelectTopK(ctx context.Context, question string, k int) ([]exemplar.Exemplar, error)
}

// TableInfoSource describes the live database tables for the prompt.
type TableInfoSource interface {
	TableInfo() string
}

// QueryRunner executes generated SQL.
type QueryRunner interface {
	Run(ctx context.Context, query string) (database.Result, error)
}

type Options struct {
	// ExemplarCount is the number of few-shot examples per prompt.
	ExemplarCount int
	// ResultLimit is the row cap the model is told to apply.
	ResultLimit int
	// MaxStringLength shortens long strings in the rendered result.
	MaxStringLength int
	// Prefix overrides prompt.PostgresPrefix.
	Prefix string
	Logger zerolog.Logger
}

// Executor runs questions. It holds no per-question state and is safe for
// concurrent use; sessions serialise their own questions.
type Executor struct {
	backend  llm.Backend
	examples ExemplarSelector
	tables   TableInfoSource
	db       QueryRunner
	opts     Options
}

func NewExecutor(backend llm.Backend, examples ExemplarSelector, tables TableInfoSource, db QueryRunner, opts Options) *Executor {
	if opts.ExemplarCount <= 0 {
		opts.ExemplarCount = 3
	}
	if opts.ResultLimit <= 0 {
		opts.ResultLimit = 5
	}
	return &Executor{backend: backend, examples: examples, tables: tables, db: db, opts: opts}
}

// Backend returns the model backend name.
func (e *Executor) Backend() string { return e.backend.Name() }

// Invoke answers question. It never panics on a step failure and never returns
// an error: failures become a sentinel record inside a Failed outcome, and the
// cause is logged.
func (e *Executor) Invoke(ctx context.Context, question string) Outcome {
	start := time.Now()
	run := &invocation{Executor: e, question: question, state: Received}

	rec, err := run.safeExecute(ctx)
	out := Outcome{Duration: time.Since(start), Reached: run.state}
	if err != nil {
		out.State = Failed
		out.Record = SentinelRecord(question)
		out.Err = tag(err)
		e.opts.Logger.Error().
			Err(err).
			Str("backend", e.backend.Name()).
			Str("kind", string(out.Err.Kind)).
			Str("reached", run.state.String()).
			Str("question", question).
			Dur("elapsed", out.Duration).
			Msg("question failed")
		observability.ObserveChain(e.backend.Name(), string(out.Err.Kind), run.state.String(), out.Duration)
		return out
	}

	out.State = Done
	out.Record = rec
	e.opts.Logger.Info().
		Str("backend", e.backend.Name()).
		Str("question", question).
		Str("sql", rec.SQL).
		Dur("elapsed", out.Duration).
		Msg("question answered")
	observability.ObserveChain(e.backend.Name(), "", Done.String(), out.Duration)
	return out
}

type invocation struct {
	*Executor
	question string
	state    State
}

func (r *invocation) advance(to State) {
	r.opts.Logger.Debug().Str("from", r.state.String()).Str("to", to.String()).Msg("chain step")
	r.state = to
}

func (r *invocation) safeExecute(ctx context.Context) (rec Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.execute(ctx)
}

func (r *invocation) execute(ctx context.Context) (Record, error) {
	examples, err := r.examples.SelectTopK(ctx, r.question, r.opts.ExemplarCount)
	if err != nil {
		return Record{}, apperrors.Wrap(apperrors.BackendUnavailable, "select exemplars", err)
	}

	queryPrompt, err := prompt.QueryPrompt(prompt.Input{
		Prefix:    r.opts.Prefix,
		Exemplars: examples,
		TableInfo: r.tables.TableInfo(),
		Question:  r.question,
		TopK:      r.opts.ResultLimit,
	})
	if err != nil {
		return Record{}, apperrors.Wrap(apperrors.BackendUnavailable, "build prompt", err)
	}
	if n, err := prompt.CountTokens(queryPrompt); err == nil {
		observability.ObservePromptTokens(n)
		r.opts.Logger.Debug().Int("tokens", n).Int("exemplars", len(examples)).Msg("prompt built")
	}
	r.advance(PromptBuilt)

	completion, err := r.backend.Complete(ctx, queryPrompt, prompt.ResultStop)
	if err != nil {
		return Record{}, err
	}
	r.advance(ModelQueried)

	sql, err := llm.ExtractSQL(completion)
	if err != nil {
		return Record{}, err
	}
	r.advance(SQLExtracted)

	res, err := r.db.Run(ctx, sql)
	if err != nil {
		return Record{}, err
	}
	result := database.Literal(res.Rows, r.opts.MaxStringLength)
	r.advance(SQLExecuted)

	answer, err := r.backend.Complete(ctx, prompt.AnswerPrompt(queryPrompt, sql, result))
	if err != nil {
		return Record{}, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Record{}, apperrors.New(apperrors.BackendUnavailable, "model returned no answer")
	}
	r.advance(AnswerSynthesized)

	r.advance(Done)
	return Record{
		Question: r.question,
		SQL:      sql,
		Result:   result,
		Columns:  res.Columns,
		Answer:   answer,
	}, nil
}

// tag makes sure every failure carries a kind. Untagged errors come from
// collaborators outside the model and database paths.
func tag(err error) *apperrors.E {
	var e *apperrors.E
	if errors.As(err, &e) {
		return e
	}
	return apperrors.Wrap(apperrors.BackendUnavailable, "invoke chain", err)
}
