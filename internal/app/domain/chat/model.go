package chat

// Message is one turn of a chat-completion conversation, in the wire shape
// the providers expect.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is a successful provider invocation.
type Result struct {
	Content  string
	Provider string
	Model    string
	Attempts int
}
