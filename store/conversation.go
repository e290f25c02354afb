package store

// Conversation is a row of the catalog.
type Conversation struct {
	ID         int32
	Name       string
	CoverImage []byte
	CreatedTs  int64
}

// Identifier returns the "{id}-{name}" reference used in URLs and table names.
func (c *Conversation) Identifier() string {
	return TableName(c.ID, c.Name)
}

type FindConversation struct {
	ID   *int32
	Name *string
	// Limit and Offset page through the catalog in id order. Zero Limit means no limit.
	Limit  int
	Offset int
	// Descending lists the newest conversations first.
	Descending bool
	// ExcludeCover leaves CoverImage nil.
	ExcludeCover bool
}

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is a row of a conversation table.
type Message struct {
	ID      int32
	Sender  Sender
	Content string
}

// AppendTurn is one user message and its assistant reply, written together.
type AppendTurn struct {
	Table            TableRef
	UserMessage      string
	AssistantMessage string
}

type FindMessage struct {
	Table TableRef
}
