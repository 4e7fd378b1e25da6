package bridge

// Status is the connection lifecycle record. Fields are only changed through
// the transition methods below so that ClientReceivedInit never outlives
// ClientStarted.
type Status struct {
	ClientConnected     bool `json:"client_connected"`
	ClientStarted       bool `json:"client_started"`
	ClientReceivedInit  bool `json:"client_received_init"`
	ClientReconnecting  bool `json:"client_reconnecting"`
	ClientDisconnecting bool `json:"client_disconnecting"`
	ServerReceivedInit  bool `json:"server_received_init"`
}

// canCommunicate reports whether public calls and ticks may be forwarded,
// ignoring the client's own init handshake.
func (s Status) canCommunicate() bool {
	return s.ClientConnected && s.ClientStarted && !s.ClientReconnecting && !s.ClientDisconnecting
}

func (s *Status) connected() {
	s.ClientConnected = true
	s.ClientReconnecting = false
}

func (s *Status) lost() {
	s.ClientConnected = false
}

func (s *Status) started() {
	s.ClientStarted = true
}

func (s *Status) initReceived() {
	if s.ClientStarted {
		s.ClientReceivedInit = true
	}
}

func (s *Status) stopped() {
	s.ClientStarted = false
	s.ClientReceivedInit = false
}

func (s *Status) reconnecting() {
	s.ClientReconnecting = true
	s.ClientDisconnecting = false
}

func (s *Status) disconnecting() {
	s.ClientDisconnecting = true
	s.ClientReconnecting = false
}

func (s *Status) disconnected() {
	s.stopped()
	s.ClientDisconnecting = false
}

func (s *Status) serverInit(received bool) {
	s.ServerReceivedInit = received
}
