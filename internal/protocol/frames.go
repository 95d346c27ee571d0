// Package protocol holds the wire frames exchanged between members and the relay.
//
// Frames are externally tagged JSON objects: a payload-carrying variant is
// encoded as {"<tag>": {...}} and a unit variant as the bare string "<tag>".
// Tags are camelCase and must stay stable across releases.
package protocol

const (
	TagJoin        = "join"
	TagEncData     = "encData"
	TagExit        = "exit"
	TagError       = "error"
	TagShutdown    = "shutdown"
	TagJoinMessage = "joinMessage"
	TagKeyMessage  = "keyMessage"
)

// TimestampLayout formats BroadcastMessage timestamps as hours:minutes:seconds.
const TimestampLayout = "15:04:05"

const (
	MaxUsernameLength = 15
	MaxContentLength  = 5000
)

// Inbound is a frame a member sends to the relay.
type Inbound interface {
	Tag() string
	inbound()
}

// Outbound is a frame the relay sends to a member.
type Outbound interface {
	Tag() string
	outbound()
}

// Join asks the relay to register the connection under Username. PublicKey is
// a PEM encoded RSA public key the group key gets wrapped with.
type Join struct {
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
}

// EncData is the authenticated-encryption envelope. The nonce is single use.
type EncData struct {
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

type Exit struct{}

type Error struct {
	ErrorMsg string `json:"errorMsg"`
}

type Shutdown struct{}

type JoinMessage struct {
	Joined string `json:"joined"`
}

// KeyMessage carries the group key wrapped under a single member's public key.
type KeyMessage struct {
	WrappedKey []byte `json:"wrappedKey"`
}

// UserMessage is the plaintext a member encrypts inside EncData.
type UserMessage struct {
	Content string `json:"content" validate:"max=5000"`
}

// BroadcastMessage is the plaintext the relay encrypts inside EncData when
// fanning a message out.
type BroadcastMessage struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (Join) Tag() string        { return TagJoin }
func (EncData) Tag() string     { return TagEncData }
func (Exit) Tag() string        { return TagExit }
func (Error) Tag() string       { return TagError }
func (Shutdown) Tag() string    { return TagShutdown }
func (JoinMessage) Tag() string { return TagJoinMessage }
func (KeyMessage) Tag() string  { return TagKeyMessage }

func (Join) inbound()    {}
func (EncData) inbound() {}
func (Exit) inbound()    {}

func (EncData) outbound()     {}
func (Error) outbound()       {}
func (Shutdown) outbound()    {}
func (JoinMessage) outbound() {}
func (KeyMessage) outbound()  {}
