// Package session implements the turn session store: the short-lived
// conversation history a completion is built from.
//
// A session is an identifier plus an ordered history of role-tagged entries,
// persisted under a TTL. Histories are seeded at creation (system prompt and
// optional context lines) and grow by one user entry per utterance and one
// assistant entry per spoken sentence. A barge-in or an explicit reset rotates
// the session: the old identifier is discarded and late appends against it are
// dropped, never merged into the successor.
package session

import (
	"encoding/json"

	"github.com/sofie-labs/facedancer/pkg/provider/llm"
)

// Entry is one role-tagged line of conversation history. The wire form is the
// JSON object `{"role":…,"content":…}`; a history is a JSON array of them.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is an ordered conversation transcript, oldest first.
type History []Entry

// Seeder produces the initial history for a brand-new session. It is called
// on every session creation so the seed can reflect current context.
type Seeder func() History

// Messages converts the history into LLM request messages.
func (h History) Messages() []llm.Message {
	msgs := make([]llm.Message, 0, len(h))
	for _, e := range h {
		msgs = append(msgs, llm.Message{Role: e.Role, Content: e.Content})
	}
	return msgs
}

// Clone returns a deep copy so callers can mutate freely.
func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

func marshalHistory(h History) ([]byte, error) {
	if h == nil {
		h = History{}
	}
	return json.Marshal(h)
}

func unmarshalHistory(raw []byte) (History, error) {
	var h History
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, err
	}
	return h, nil
}
