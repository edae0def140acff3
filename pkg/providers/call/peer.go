package call

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/providers"
	"github.com/tphan267/arqut-signal/pkg/signaling"
)

const (
	RoleNone     = "none"
	RoleOfferer  = "offerer"
	RoleAnswerer = "answerer"

	dataChannelLabel = "arqut"
)

// DefaultICEServers is used when no STUN servers are configured.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

var (
	// ErrNoDataChannel is returned by SendText before the data channel opens.
	ErrNoDataChannel = errors.New("data channel not open")
	// ErrRoomFull is reported by Done when the relay refused the join.
	ErrRoomFull = errors.New("room is full")
)

// Sender relays local handshake payloads to the remote peer. *signaling.Client
// satisfies it.
type Sender interface {
	SendSessionDescription(desc signaling.SessionDescription) error
	SendIceCandidate(candidate signaling.IceCandidate)
}

// Peer negotiates one pion PeerConnection from signaling notifications. The
// occupant told that a peer joined makes the offer; the other answers.
// Remote candidates that arrive before the remote description are queued.
type Peer struct {
	api    *webrtc.API
	config webrtc.Configuration
	sender Sender
	logger *logger.Logger

	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	role      string
	pending   []webrtc.ICECandidateInit
	onMessage func(text string)
	onOpen    func()
	mutex     sync.Mutex

	done    chan struct{}
	endErr  error
	endOnce sync.Once
}

// NewPeer creates a peer. iceServers defaults to DefaultICEServers when nil.
func NewPeer(iceServers []webrtc.ICEServer, sender Sender, log *logger.Logger) (*Peer, error) {
	if sender == nil {
		return nil, errors.New("call peer requires a sender")
	}
	if log == nil {
		log = logger.NewDefault("ARQUT")
	}
	if iceServers == nil {
		iceServers = DefaultICEServers
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(log)}

	return &Peer{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(se), webrtc.WithMediaEngine(mediaEngine)),
		config: webrtc.Configuration{ICEServers: iceServers},
		sender: sender,
		logger: log,
		role:   RoleNone,
		done:   make(chan struct{}),
	}, nil
}

// OnMessage sets the callback for text received on the data channel.
func (p *Peer) OnMessage(fn func(text string)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.onMessage = fn
}

// OnOpen sets the callback run each time a call's data channel opens.
func (p *Peer) OnOpen(fn func()) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.onOpen = fn
}

// SendText writes text to the open data channel.
func (p *Peer) SendText(text string) error {
	p.mutex.Lock()
	dc := p.dc
	p.mutex.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNoDataChannel
	}
	return dc.SendText(text)
}

func (p *Peer) OnCreateRoom() {
	p.logger.Info("[Call] Waiting for a peer to join")
}

func (p *Peer) OnSelfJoined() {
	p.logger.Info("[Call] Waiting for offer")
}

// OnPeerJoined starts a new session as the offerer.
func (p *Peer) OnPeerJoined() {
	p.Hangup()

	p.mutex.Lock()
	defer p.mutex.Unlock()

	pc, err := p.newPeerConnectionLocked(RoleOfferer)
	if err != nil {
		p.logger.Error("[Call] Failed to create peer connection: %v", err)
		return
	}

	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		p.logger.Error("[Call] Failed to create data channel: %v", err)
		return
	}
	p.attachDataChannelLocked(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		p.logger.Error("[Call] Failed to create offer: %v", err)
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		p.logger.Error("[Call] Failed to set local offer: %v", err)
		return
	}

	p.logger.Info("[Call] Sending offer")
	if err := p.sender.SendSessionDescription(FromPion(offer)); err != nil {
		p.logger.Error("[Call] Failed to send offer: %v", err)
	}
}

// OnOfferReceived starts a new session as the answerer.
func (p *Peer) OnOfferReceived(desc signaling.SessionDescription) {
	p.closeConnection()

	p.mutex.Lock()
	defer p.mutex.Unlock()

	pc, err := p.newPeerConnectionLocked(RoleAnswerer)
	if err != nil {
		p.logger.Error("[Call] Failed to create peer connection: %v", err)
		return
	}

	if err := pc.SetRemoteDescription(ToPion(desc)); err != nil {
		p.logger.Error("[Call] Failed to set remote offer: %v", err)
		return
	}
	p.flushPendingLocked()

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		p.logger.Error("[Call] Failed to create answer: %v", err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		p.logger.Error("[Call] Failed to set local answer: %v", err)
		return
	}

	p.logger.Info("[Call] Sending answer")
	if err := p.sender.SendSessionDescription(FromPion(answer)); err != nil {
		p.logger.Error("[Call] Failed to send answer: %v", err)
	}
}

func (p *Peer) OnAnswerReceived(desc signaling.SessionDescription) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.pc == nil || p.role != RoleOfferer {
		p.logger.Warn("[Call] Ignoring answer (role %s)", p.role)
		return
	}
	if err := p.pc.SetRemoteDescription(ToPion(desc)); err != nil {
		p.logger.Error("[Call] Failed to set remote answer: %v", err)
		return
	}
	p.flushPendingLocked()
}

func (p *Peer) OnIceCandidateReceived(candidate signaling.IceCandidate) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	init := ToPionCandidate(candidate)
	if p.pc == nil || p.pc.RemoteDescription() == nil {
		p.pending = append(p.pending, init)
		return
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		p.logger.Warn("[Call] Failed to add candidate: %v", err)
	}
}

func (p *Peer) OnPeerLeave(peerID string) {
	p.logger.Info("[Call] Peer %s left, closing call", peerID)
	p.Hangup()
}

func (p *Peer) OnRoomFull() {
	p.logger.Warn("[Call] Room is full, no call possible")
	p.end(ErrRoomFull)
}

func (p *Peer) OnConnectionLost(err error) {
	p.logger.Warn("[Call] Signaling lost (%v), closing call", err)
	p.Hangup()
	p.end(err)
}

// Done is closed once the session can no longer carry a call: the room was
// full or the relay connection was lost. Err reports which.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Err returns the reason Done was closed, nil while the session is live.
func (p *Peer) Err() error {
	select {
	case <-p.done:
		return p.endErr
	default:
		return nil
	}
}

func (p *Peer) end(err error) {
	p.endOnce.Do(func() {
		p.endErr = err
		close(p.done)
	})
}

// Hangup closes the current peer connection and forgets queued candidates.
func (p *Peer) Hangup() {
	p.mutex.Lock()
	p.pending = nil
	p.mutex.Unlock()

	p.closeConnection()
}

// Status reports the current session.
func (p *Peer) Status() providers.CallStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	status := providers.CallStatus{
		Role:              p.role,
		ConnectionState:   webrtc.PeerConnectionStateClosed.String(),
		SignalingState:    webrtc.SignalingStateClosed.String(),
		DataChannel:       webrtc.DataChannelStateClosed.String(),
		PendingCandidates: len(p.pending),
	}
	if p.pc != nil {
		status.ConnectionState = p.pc.ConnectionState().String()
		status.SignalingState = p.pc.SignalingState().String()
	}
	if p.dc != nil {
		status.DataChannel = p.dc.ReadyState().String()
	}
	return status
}

// closeConnection detaches the peer connection and closes it outside the lock,
// since pion may call back into the peer while closing.
func (p *Peer) closeConnection() {
	p.mutex.Lock()
	pc := p.pc
	p.pc = nil
	p.dc = nil
	p.role = RoleNone
	p.mutex.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			p.logger.Warn("[Call] Failed to close peer connection: %v", err)
		}
	}
}

func (p *Peer) newPeerConnectionLocked(role string) (*webrtc.PeerConnection, error) {
	pc, err := p.api.NewPeerConnection(p.config)
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		p.sender.SendIceCandidate(FromPionCandidate(c.ToJSON()))
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		p.logger.Debug("[Call] ICE state: %s", state)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Info("[Call] Connection state: %s", state)
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != dataChannelLabel {
			return
		}
		p.mutex.Lock()
		defer p.mutex.Unlock()
		if p.pc == pc {
			p.attachDataChannelLocked(dc)
		}
	})

	p.pc = pc
	p.role = role
	return pc, nil
}

func (p *Peer) attachDataChannelLocked(dc *webrtc.DataChannel) {
	p.dc = dc

	dc.OnOpen(func() {
		p.logger.Info("[Call] Data channel %s open", dc.Label())
		p.mutex.Lock()
		fn := p.onOpen
		p.mutex.Unlock()
		if fn != nil {
			fn()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		p.mutex.Lock()
		fn := p.onMessage
		p.mutex.Unlock()

		if fn != nil {
			fn(string(msg.Data))
		} else {
			p.logger.Info("[Call] Peer says: %s", msg.Data)
		}
	})
}

func (p *Peer) flushPendingLocked() {
	for _, init := range p.pending {
		if err := p.pc.AddICECandidate(init); err != nil {
			p.logger.Warn("[Call] Failed to add queued candidate: %v", err)
		}
	}
	p.pending = nil
}

var _ signaling.Handler = (*Peer)(nil)
