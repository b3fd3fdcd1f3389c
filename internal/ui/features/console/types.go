package console

import (
	"encoding/json"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/connstr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/workflow"
)

// Signals are the form fields sent by the browser with every action.
type Signals struct {
	APIKey           string `json:"apiKey"`
	Server           string `json:"server"`
	Database         string `json:"database"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	ConnectionString string `json:"connectionString"`
	Query            string `json:"query"`
	Mode             string `json:"mode"`
}

// Params returns the database fields as connection parameters.
func (s Signals) Params() connstr.Params {
	return connstr.Params{
		Server:   s.Server,
		Database: s.Database,
		Username: s.Username,
		Password: s.Password,
		Raw:      s.ConnectionString,
	}
}

// credentials selects which submitted secrets an action stores.
type credentials int

const (
	checkNone credentials = iota
	checkKey
	checkDB
)

// update stores the submitted secrets on the session; changed values relock
// the gate. The credential being checked is always stored, so a blank field
// is reported as missing. Otherwise a blank secret means the form was not
// filled in again, as after a page reload, and the stored value stays.
func (s Signals) update(check credentials) workflow.Update {
	return func(sess *session.Session) {
		if check == checkKey || s.APIKey != "" {
			sess.SetAPIKey(s.APIKey)
		}
		p := s.Params()
		if check == checkDB || p.Password != "" || p.Raw != "" {
			sess.SetDBParams(p)
		}
	}
}

// initialSignals seeds the page with the non-secret fields already known.
func initialSignals(v session.View) string {
	b, err := json.Marshal(Signals{
		Server:   v.Server,
		Database: v.Database,
		Username: v.Username,
		Query:    v.LastSQL,
		Mode:     "sql",
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}
