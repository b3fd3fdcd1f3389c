package session

// State is the gate state derived from a session's flags.
type State int

const (
	Locked State = iota
	LLMValidated
	DBValidated
	FullyValidated
	SchemaLoaded
	QueryRunning
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case LLMValidated:
		return "llm_validated"
	case DBValidated:
		return "db_validated"
	case FullyValidated:
		return "fully_validated"
	case SchemaLoaded:
		return "schema_loaded"
	case QueryRunning:
		return "query_running"
	default:
		return "unknown"
	}
}

// Unlocked reports whether queries are reachable in this state.
func (s State) Unlocked() bool {
	return s >= FullyValidated
}

// Operations that take the session's single operation slot.
const (
	OpValidateLLM = "validate_llm"
	OpValidateDB  = "validate_db"
	OpLoadSchema  = "load_schema"
	OpQuery       = "query"
)
