package domain

// SendCommand is the sending intent carried by a message:send request.
// ClientID is generated by the sender and echoed back in the
// acknowledgement so the client can replace its speculative entry.
type SendCommand struct {
	FromUserID string
	ToUserID   string
	Text       string
	ClientID   string
}

// HistoryQuery asks for one page of a conversation, walking backward
// in time. Before is an exclusive upper bound on CreatedAt in
// milliseconds; zero means "most recent page".
type HistoryQuery struct {
	UserID string
	PeerID string
	Limit  int
	Before int64
}
