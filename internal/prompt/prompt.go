// Package prompt assembles the few-shot text-to-SQL prompt sent to the model.
package prompt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/tiktoken-go/tokenizer"

	"github.com/JonMunkholm/nlq/internal/exemplar"
)

// PostgresPrefix instructs the model to answer in the Question/SQLQuery/SQLResult/Answer
// format using PostgreSQL. {{.TopK}} caps the rows it should ask for.
const PostgresPrefix = `You are a PostgreSQL expert. Given an input question, first create a syntactically correct PostgreSQL query to run, then look at the results of the query and return the answer to the input question.
Unless the user specifies in the question a specific number of examples to obtain, query for at most {{.TopK}} results using the LIMIT clause as per PostgreSQL. You can order the results to return the most informative data in the database.
Never query for all columns from a table. You must query only the columns that are needed to answer the question. Wrap each column name in double quotes (") to denote them as delimited identifiers.
Pay attention to use only the column names you can see in the tables below. Be careful to not query for columns that do not exist. Also, pay attention to which column is in which table.
Pay attention to use CURRENT_DATE function to get the current date, if the question involves "today".

Use the following format:

Question: Question here
SQLQuery: SQL Query to run
SQLResult: Result of the SQLQuery
Answer: Final answer here

`

const (
	examplesHeader = "Here are some examples:"
	separator      = "\n\n"

	// QueryMarker follows the question so the model continues with SQL.
	QueryMarker = "\nSQLQuery:"
	// ResultStop ends the first completion before the model invents a result.
	ResultStop = "\nSQLResult:"
)

var (
	exemplarTpl = template.Must(template.New("exemplar").Parse(
		"{{.TableInfo}}\n\nQuestion: {{.Input}}\nSQLQuery: {{.SQLCmd}}\nSQLResult: {{.SQLResult}}\nAnswer: {{.Answer}}"))
	suffixTpl = template.Must(template.New("suffix").Parse(
		"Only use the following tables:\n{{.TableInfo}}\n\nQuestion: {{.Question}}"))
)

// LoadPrefix reads a replacement prefix template from path and checks that it
// renders.
func LoadPrefix(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt prefix: %w", err)
	}
	prefix := string(raw)
	if strings.TrimSpace(prefix) == "" {
		return "", fmt.Errorf("prompt prefix %s is empty", path)
	}
	tpl, err := template.New("prefix").Parse(prefix)
	if err != nil {
		return "", fmt.Errorf("parse prompt prefix: %w", err)
	}
	if err := tpl.Execute(io.Discard, struct{ TopK int }{1}); err != nil {
		return "", fmt.Errorf("render prompt prefix: %w", err)
	}
	return prefix, nil
}

// Input is everything one prompt is built from.
type Input struct {
	// Prefix is a text/template over {{.TopK}}; empty means PostgresPrefix.
	Prefix    string
	Exemplars []exemplar.Exemplar
	TableInfo string
	Question  string
	TopK      int
}

// Assemble renders prefix, exemplars and suffix, in that order, separated by
// blank lines. Values are inserted verbatim.
func Assemble(in Input) (string, error) {
	prefix := in.Prefix
	if prefix == "" {
		prefix = PostgresPrefix
	}
	prefixTpl, err := template.New("prefix").Parse(prefix)
	if err != nil {
		return "", fmt.Errorf("parse prompt prefix: %w", err)
	}

	var b strings.Builder
	if err := prefixTpl.Execute(&b, struct{ TopK int }{in.TopK}); err != nil {
		return "", fmt.Errorf("render prompt prefix: %w", err)
	}
	b.WriteString(examplesHeader)

	for _, ex := range in.Exemplars {
		b.WriteString(separator)
		if err := exemplarTpl.Execute(&b, ex); err != nil {
			return "", fmt.Errorf("render exemplar: %w", err)
		}
	}

	b.WriteString(separator)
	if err := suffixTpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("render prompt suffix: %w", err)
	}
	return b.String(), nil
}

// QueryPrompt is the first-stage prompt: the question followed by the SQLQuery marker.
func QueryPrompt(in Input) (string, error) {
	in.Question += QueryMarker
	return Assemble(in)
}

// AnswerPrompt extends a query prompt with the executed SQL and its result so the
// model can phrase the final answer.
func AnswerPrompt(queryPrompt, sql, result string) string {
	return queryPrompt + sql + "\nSQLResult: " + result + "\nAnswer:"
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

// CountTokens estimates the number of model tokens in text using cl100k_base.
func CountTokens(text string) (int, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codecErr != nil {
		return 0, fmt.Errorf("load tokenizer: %w", codecErr)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return len(ids), nil
}
