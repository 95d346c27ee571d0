package hub

// ProtocolError is reported to the originating member in an Error frame; its
// text is the wire errorMsg.
type ProtocolError string

func (e ProtocolError) Error() string { return string(e) }

const (
	ErrMaxJoins         ProtocolError = "Max joins for chat reached"
	ErrInvalidPublicKey ProtocolError = "Invalid public key provided"
	ErrUsernameTaken    ProtocolError = "Username already taken"
	ErrUsernameTooLong  ProtocolError = "Username too long"
	ErrUsernameRequired ProtocolError = "Username required"
	ErrAlreadyJoined    ProtocolError = "Already joined"
	ErrNotRegistered    ProtocolError = "User must be registered"
	ErrMessageTooLong   ProtocolError = "Message too long"
	ErrDecryptFailed    ProtocolError = "Couldn't decrypt message data"
	ErrEncryptFailed    ProtocolError = "Couldn't encrypt message"
	ErrKeyWrapFailed    ProtocolError = "Couldn't encrypt chat key with user public key"
	ErrConnectionClosed ProtocolError = "Client connection already closed"
	ErrChatClosed       ProtocolError = "Chat is closed"
	ErrSendBufferFull   ProtocolError = "Client send buffer full"
)
