package dto

/**
  {
      "session_id": "eyJhbGciOi..."
  }
*/

type Session struct {
	SessionID string `json:"session_id"`
}

// StoredSession is the record kept in the client's local session slot.
type StoredSession struct {
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
}
