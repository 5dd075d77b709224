// Package engine implements the media-routing collaborator on top of the
// pion/webrtc primitives. It owns negotiation material (ICE credentials,
// DTLS fingerprints, codec capabilities) and the producer/consumer
// bridging rules; packet forwarding itself happens in the media plane.
package engine

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/core"
)

const iceRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Config struct {
	ListenIP    string
	AnnouncedIP string
	MinPort     uint16
	MaxPort     uint16
}

func (c Config) withDefaults() Config {
	if c.ListenIP == "" {
		c.ListenIP = "0.0.0.0"
	}
	if c.MinPort == 0 {
		c.MinPort = 40000
	}
	if c.MaxPort == 0 {
		c.MaxPort = 49999
	}
	return c
}

// Engine creates routers that share one DTLS certificate and a port
// allocator. Safe for concurrent use.
type Engine struct {
	cfg          Config
	fingerprints []webrtc.DTLSFingerprint
	nextPort     atomic.Uint32
	warnOnce     sync.Once
}

func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}
	fps, err := cert.GetFingerprints()
	if err != nil {
		return nil, fmt.Errorf("certificate fingerprints: %w", err)
	}
	return &Engine{cfg: cfg, fingerprints: fps}, nil
}

// defaultCapabilities mirrors the codec table offered to clients: Opus for
// audio, VP8 for video.
func defaultCapabilities() webrtc.RTPCapabilities {
	return webrtc.RTPCapabilities{
		Codecs: []webrtc.RTPCodecCapability{
			{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, SDPFmtpLine: "x-google-start-bitrate=1000"},
		},
	}
}

func (e *Engine) CreateRouter(_ context.Context) (core.Router, error) {
	return &router{engine: e, caps: defaultCapabilities(), producers: make(map[string]*producer)}, nil
}

func (e *Engine) allocPort() uint16 {
	span := uint32(e.cfg.MaxPort-e.cfg.MinPort) + 1
	n := e.nextPort.Add(1) - 1
	return e.cfg.MinPort + uint16(n%span)
}

func (e *Engine) candidateAddress() string {
	if e.cfg.AnnouncedIP != "" {
		return e.cfg.AnnouncedIP
	}
	e.warnOnce.Do(func() {
		log.Warn().Str("module", "engine").Str("listen_ip", e.cfg.ListenIP).Msg("announced IP is not set; media may fail across different networks")
	})
	return e.cfg.ListenIP
}

// router is one shared routing context. It tracks every live producer so
// CanConsume can be answered before a consumer is created.
type router struct {
	engine *Engine
	caps   webrtc.RTPCapabilities

	mu        sync.Mutex
	closed    bool
	producers map[string]*producer
}

func (r *router) RTPCapabilities() webrtc.RTPCapabilities { return r.caps }

func (r *router) CreateTransport(_ context.Context, direction core.TransportDirection) (core.MediaTransport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("router closed")
	}
	ufrag, err := randutil.GenerateCryptoRandomString(8, iceRunes)
	if err != nil {
		return nil, fmt.Errorf("ice ufrag: %w", err)
	}
	pwd, err := randutil.GenerateCryptoRandomString(24, iceRunes)
	if err != nil {
		return nil, fmt.Errorf("ice pwd: %w", err)
	}
	info := core.TransportInfo{
		ID: uuid.NewString(),
		ICEParameters: webrtc.ICEParameters{
			UsernameFragment: ufrag,
			Password:         pwd,
		},
		ICECandidates: []webrtc.ICECandidate{
			{
				Foundation: "0",
				Priority:   1,
				Address:    r.engine.candidateAddress(),
				Protocol:   webrtc.ICEProtocolUDP,
				Port:       r.engine.allocPort(),
				Typ:        webrtc.ICECandidateTypeHost,
				Component:  1,
			},
		},
		DTLSParameters: webrtc.DTLSParameters{
			Role:         webrtc.DTLSRoleAuto,
			Fingerprints: r.engine.fingerprints,
		},
		Direction: direction,
	}
	return &transport{router: r, info: info}, nil
}

// CanConsume reports whether the requested capabilities carry a codec the
// producer's media can be bridged to.
func (r *router) CanConsume(producerID string, caps webrtc.RTPCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return matchCodec(p.codec, caps) != nil
}

func (r *router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.producers = make(map[string]*producer)
}

func (r *router) registerProducer(p *producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *router) removeProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *router) producer(id string) (*producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

func matchCodec(codec webrtc.RTPCodecCapability, caps webrtc.RTPCapabilities) *webrtc.RTPCodecCapability {
	for i := range caps.Codecs {
		if strings.EqualFold(caps.Codecs[i].MimeType, codec.MimeType) {
			return &caps.Codecs[i]
		}
	}
	return nil
}

type closer interface{ Close() }

type transport struct {
	router *router
	info   core.TransportInfo

	mu        sync.Mutex
	connected bool
	closed    bool
	owned     []closer
}

func (t *transport) Info() core.TransportInfo { return t.info }

func (t *transport) Connect(_ context.Context, dtls webrtc.DTLSParameters) error {
	if len(dtls.Fingerprints) == 0 {
		return fmt.Errorf("dtls parameters missing fingerprints")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transport closed")
	}
	t.connected = true
	return nil
}

func (t *transport) Produce(_ context.Context, kind webrtc.RTPCodecType, rtp webrtc.RTPParameters) (core.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}
	codec, err := producerCodec(kind, rtp)
	if err != nil {
		return nil, err
	}
	p := &producer{id: uuid.NewString(), kind: kind, codec: codec, router: t.router}
	t.router.registerProducer(p)
	t.owned = append(t.owned, p)
	return p, nil
}

func (t *transport) Consume(_ context.Context, producerID string, caps webrtc.RTPCapabilities) (core.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, fmt.Errorf("producer %s not found", producerID)
	}
	matched := matchCodec(p.codec, caps)
	if matched == nil {
		return nil, fmt.Errorf("no compatible codec for producer %s", producerID)
	}
	c := &consumer{
		id:         uuid.NewString(),
		producerID: producerID,
		kind:       p.kind,
		rtp: webrtc.RTPParameters{
			Codecs: []webrtc.RTPCodecParameters{
				{RTPCodecCapability: *matched, PayloadType: payloadTypeFor(p.kind)},
			},
		},
		paused: true,
	}
	t.owned = append(t.owned, c)
	return c, nil
}

func (t *transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, res := range t.owned {
		res.Close()
	}
	t.owned = nil
}

func producerCodec(kind webrtc.RTPCodecType, rtp webrtc.RTPParameters) (webrtc.RTPCodecCapability, error) {
	if len(rtp.Codecs) > 0 {
		return rtp.Codecs[0].RTPCodecCapability, nil
	}
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, nil
	case webrtc.RTPCodecTypeVideo:
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, nil
	default:
		return webrtc.RTPCodecCapability{}, fmt.Errorf("unknown media kind")
	}
}

func payloadTypeFor(kind webrtc.RTPCodecType) webrtc.PayloadType {
	if kind == webrtc.RTPCodecTypeAudio {
		return 111
	}
	return 96
}

type producer struct {
	id     string
	kind   webrtc.RTPCodecType
	codec  webrtc.RTPCodecCapability
	router *router

	mu     sync.Mutex
	closed bool
}

func (p *producer) ID() string                { return p.id }
func (p *producer) Kind() webrtc.RTPCodecType { return p.kind }

func (p *producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.router.removeProducer(p.id)
}

type consumer struct {
	id         string
	producerID string
	kind       webrtc.RTPCodecType
	rtp        webrtc.RTPParameters

	mu     sync.Mutex
	paused bool
	closed bool
}

func (c *consumer) ID() string                          { return c.id }
func (c *consumer) ProducerID() string                  { return c.producerID }
func (c *consumer) Kind() webrtc.RTPCodecType           { return c.kind }
func (c *consumer) RTPParameters() webrtc.RTPParameters { return c.rtp }

func (c *consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *consumer) Resume(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("consumer closed")
	}
	c.paused = false
	return nil
}

func (c *consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
