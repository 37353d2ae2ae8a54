package core

import "github.com/interviewly/meetkit/internal/domain"

// clientSession implements ClientSession by pairing meta + transports.
type clientSession struct {
	meta   *domain.Participant
	signal SignalConnection
	media  MediaConnection
}

func NewClientSession(meta *domain.Participant) ClientSession {
	return &clientSession{meta: meta}
}

func (s *clientSession) Meta() *domain.Participant { return s.meta }
func (s *clientSession) Signal() SignalConnection  { return s.signal }
func (s *clientSession) Media() MediaConnection    { return s.media }

func (s *clientSession) UpdateSignal(conn SignalConnection) ClientSession {
	s.signal = conn
	return s
}

func (s *clientSession) UpdateMedia(mc MediaConnection) ClientSession {
	s.media = mc
	return s
}
