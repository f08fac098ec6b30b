package chain

// State is a step of one invocation.
type State int

const (
	Received State = iota
	PromptBuilt
	ModelQueried
	SQLExtracted
	SQLExecuted
	AnswerSynthesized
	Done
	Failed
)

var stateNames = [...]string{
	Received:          "received",
	PromptBuilt:       "prompt_built",
	ModelQueried:      "model_queried",
	SQLExtracted:      "sql_extracted",
	SQLExecuted:       "sql_executed",
	AnswerSynthesized: "answer_synthesized",
	Done:              "done",
	Failed:            "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
