package model

// Turn is one completed exchange: the user query paired with the assistant
// answer. It travels the persistence queue as a single payload so both rows
// are written together.
type Turn struct {
	SessionID uint   `json:"session_id"`
	UserID    uint   `json:"user_id"`
	Query     string `json:"query"`
	Answer    string `json:"answer"`
}
