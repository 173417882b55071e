package mpclient

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

const (
	DefaultHost          = "server.wesnoth.org"
	DefaultPort          = 15000
	DefaultClientVersion = "1.18.0"
	DefaultClientSource  = "wesnoth"
	DefaultTimeout       = 10 * time.Second

	maxVersionRequests = 4
	readChunk          = 4096
)

// Warning codes the server uses for an unknown or inactive nick.
var rejectingWarnings = map[string]bool{
	"105": true,
	"106": true,
}

type State string

const (
	StateIdle              State = "idle"
	StateConnecting        State = "connecting"
	StateVersionSent       State = "version-sent"
	StateAwaitingChallenge State = "awaiting-challenge"
	StateCredentialsSent   State = "credentials-sent"
	StateAwaitingResult    State = "awaiting-result"
	StateAuthenticated     State = "authenticated"
	StateRejected          State = "rejected"
	StateClosed            State = "closed"
	StateErrored           State = "errored"
)

type Outcome string

const (
	OutcomeAuthenticated Outcome = "authenticated"
	OutcomeRejected      Outcome = "rejected"
)

// SessionInfo describes the lobby session granted by the server.
type SessionInfo struct {
	Username    string
	Attrs       map[string]string
	WarningCode string
	Warning     string
}

type Result struct {
	Outcome       Outcome
	Session       SessionInfo
	Reason        string
	Code          string
	ServerVersion string
	ConnectionNum uint32
}

func (r Result) Authenticated() bool { return r.Outcome == OutcomeAuthenticated }

type Request struct {
	Host          string
	Port          int
	Username      string
	Credential    string
	ClientVersion string
	ClientSource  string
	Timeout       time.Duration

	// Prover overrides the scheme named by the server's challenge.
	Prover        Prover
	MaxFrameBytes int
	Logger        *zap.Logger
}

func (r Request) normalize() (Request, error) {
	r.Host = strings.TrimSpace(r.Host)
	if r.Host == "" || strings.TrimSpace(r.Username) == "" {
		return r, ErrInvalidRequest
	}
	if r.Port == 0 {
		r.Port = DefaultPort
	}
	if r.Port < 0 || r.Port > 65535 {
		return r, ErrInvalidRequest
	}
	if r.ClientVersion == "" {
		r.ClientVersion = DefaultClientVersion
	}
	if r.ClientSource == "" {
		r.ClientSource = DefaultClientSource
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	if r.MaxFrameBytes <= 0 {
		r.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	return r, nil
}

// Session is one login attempt over one TCP connection. It is driven by a
// single goroutine and is not reusable.
type Session struct {
	req      Request
	ctx      context.Context
	cancel   context.CancelFunc
	deadline time.Time

	conn     net.Conn
	stopWait func() bool
	state    State
	frames   frameBuffer
	rbuf     []byte
	version  string
	connNum  uint32
	log      *zap.Logger
}

// NewSession prepares a session. The deadline starts now: now+Timeout,
// clipped by ctx's own deadline.
func NewSession(ctx context.Context, req Request) (*Session, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(req.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	sctx, cancel := context.WithDeadline(ctx, deadline)
	return &Session{
		req:      req,
		ctx:      sctx,
		cancel:   cancel,
		deadline: deadline,
		state:    StateIdle,
		frames:   frameBuffer{max: req.MaxFrameBytes},
		rbuf:     make([]byte, readChunk),
		log:      req.Logger.With(zap.String("user", req.Username), zap.String("server", req.Host)),
	}, nil
}

// Login runs the whole handshake. A rejected login returns a Result with a
// nil error; every failure is a *HandshakeError.
func Login(ctx context.Context, req Request) (Result, error) {
	s, err := NewSession(ctx, req)
	if err != nil {
		return Result{}, err
	}
	defer s.Close()
	return s.Run()
}

func (s *Session) State() State { return s.state }

// Run drives the state machine to a terminal state.
func (s *Session) Run() (Result, error) {
	if s.state != StateIdle {
		return Result{}, &HandshakeError{Kind: ErrProtocol, State: s.state, Detail: "session already used"}
	}
	started := time.Now()
	res, err := s.run()
	if err != nil {
		s.log.Warn("wesnoth login errored", zap.String("kind", string(KindOf(err))), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return Result{}, err
	}
	s.log.Info("wesnoth login finished", zap.String("outcome", string(res.Outcome)), zap.String("reason", res.Reason), zap.Duration("elapsed", time.Since(started)))
	return res, nil
}

func (s *Session) run() (Result, error) {
	if err := s.connect(); err != nil {
		return Result{}, err
	}
	if err := s.send(message("version",
		[2]string{"version", s.req.ClientVersion},
		[2]string{"client_source", s.req.ClientSource},
	)); err != nil {
		return Result{}, err
	}
	s.transition(StateVersionSent)

	ch, err := s.awaitChallenge()
	if err != nil {
		return Result{}, err
	}
	prover := s.req.Prover
	if prover == nil {
		if prover, err = ProverFor(ch.Scheme); err != nil {
			return Result{}, s.fail(ErrProtocol, "challenge", err)
		}
	}
	proof, err := prover.Prove(s.req.Username, s.req.Credential, ch)
	if err != nil {
		return Result{}, s.fail(ErrProtocol, "credential proof", err)
	}
	if err := s.send(message("login",
		[2]string{"username", s.req.Username},
		[2]string{"password", proof},
	)); err != nil {
		return Result{}, err
	}
	s.transition(StateCredentialsSent)
	return s.awaitResult()
}

func (s *Session) connect() error {
	s.transition(StateConnecting)
	addr := net.JoinHostPort(s.req.Host, strconv.Itoa(s.req.Port))
	var d net.Dialer
	conn, err := d.DialContext(s.ctx, "tcp", addr)
	if err != nil {
		if s.ctx.Err() != nil {
			return s.ioFail("dial "+addr, err)
		}
		return s.fail(ErrConnectFailed, addr, err)
	}
	s.conn = conn
	// cancellation unblocks any pending read or write
	s.stopWait = context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	if err := conn.SetDeadline(s.deadline); err != nil {
		return s.ioFail("set deadline", err)
	}

	var hs [frameHeaderLen]byte
	if _, err := conn.Write(hs[:]); err != nil {
		return s.ioFail("handshake write", err)
	}
	if _, err := io.ReadFull(conn, hs[:]); err != nil {
		return s.ioFail("handshake read", err)
	}
	s.connNum = binary.BigEndian.Uint32(hs[:])
	return nil
}

func (s *Session) awaitChallenge() (Challenge, error) {
	skipped := 0
	for {
		msg, err := s.readMessage()
		if err != nil {
			return Challenge{}, err
		}
		s.transition(StateAwaitingChallenge)
		switch msg.Tag {
		case "version":
			// the server's request for our version; already answered
			skipped++
			if skipped > maxVersionRequests {
				return Challenge{}, s.fail(ErrProtocol, "server keeps requesting [version]", nil)
			}
			if v := msg.StringOr("version", ""); v != "" {
				s.version = v
			}
		case "mustlogin":
			return Challenge{
				Scheme: msg.StringOr("proof_scheme", ""),
				Salt:   msg.StringOr("salt", ""),
			}, nil
		case "reject":
			return Challenge{}, s.fail(ErrIncompatibleVersion, "server accepts "+msg.StringOr("accepted_versions", "other versions"), nil)
		case "redirect":
			return Challenge{}, s.fail(ErrIncompatibleVersion, "redirected to "+net.JoinHostPort(msg.StringOr("host", "?"), msg.StringOr("port", "?")), nil)
		default:
			return Challenge{}, s.fail(ErrProtocol, "unexpected ["+msg.Tag+"] before login", nil)
		}
	}
}

func (s *Session) awaitResult() (Result, error) {
	s.transition(StateAwaitingResult)
	msg, err := s.readMessage()
	if err != nil {
		return Result{}, err
	}
	res := Result{ServerVersion: s.version, ConnectionNum: s.connNum}
	switch msg.Tag {
	case "join_lobby":
		res.Outcome = OutcomeAuthenticated
		res.Session = SessionInfo{Username: s.req.Username, Attrs: attrMap(msg)}
		s.transition(StateAuthenticated)
	case "error":
		res.Outcome = OutcomeRejected
		res.Reason = msg.StringOr("message", "authentication failed")
		res.Code = msg.StringOr("error_code", "")
		s.transition(StateRejected)
	case "warning":
		code := msg.StringOr("warning_code", "")
		text := msg.StringOr("message", "authentication warning")
		if code == "" || rejectingWarnings[code] {
			res.Outcome = OutcomeRejected
			res.Reason, res.Code = text, code
			s.transition(StateRejected)
			break
		}
		res.Outcome = OutcomeAuthenticated
		res.Session = SessionInfo{Username: s.req.Username, Attrs: attrMap(msg), WarningCode: code, Warning: text}
		s.transition(StateAuthenticated)
	default:
		return Result{}, s.fail(ErrProtocol, "unexpected ["+msg.Tag+"] after login", nil)
	}
	return res, nil
}

// readMessage blocks until one whole frame is buffered.
func (s *Session) readMessage() (*wml.Node, error) {
	for {
		payload, ok, err := s.frames.next()
		if err != nil {
			return nil, s.fail(ErrProtocol, "framing", err)
		}
		if ok {
			msg, err := decodeFrame(payload, s.req.MaxFrameBytes)
			if err != nil {
				return nil, s.fail(ErrProtocol, "decode frame", err)
			}
			s.log.Debug("frame received", zap.String("tag", msg.Tag), zap.String("state", string(s.state)))
			return msg, nil
		}
		n, err := s.conn.Read(s.rbuf)
		if n > 0 {
			s.frames.push(s.rbuf[:n])
			continue
		}
		if err != nil {
			return nil, s.ioFail("read", err)
		}
	}
}

func (s *Session) send(n *wml.Node) error {
	frame, err := encodeFrame(n)
	if err != nil {
		return s.fail(ErrProtocol, "encode", err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return s.ioFail("write", err)
	}
	return nil
}

func (s *Session) transition(to State) {
	s.log.Debug("state", zap.String("from", string(s.state)), zap.String("to", string(to)))
	s.state = to
}

func (s *Session) fail(kind ErrorKind, detail string, err error) error {
	herr := &HandshakeError{Kind: kind, State: s.state, Detail: detail, Err: err}
	s.state = StateErrored
	return herr
}

// ioFail classifies a socket error: an expired deadline is a timeout, a
// cancelled context carries ctx.Err(), anything else is io.
func (s *Session) ioFail(op string, err error) error {
	if cerr := s.ctx.Err(); cerr != nil {
		if errors.Is(cerr, context.DeadlineExceeded) {
			return s.fail(ErrTimeout, op, cerr)
		}
		return s.fail(ErrIO, op, cerr)
	}
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return s.fail(ErrTimeout, op, err)
	}
	return s.fail(ErrIO, op, err)
}

// Close releases the connection. Safe to call more than once.
func (s *Session) Close() error {
	if s.stopWait != nil {
		s.stopWait()
		s.stopWait = nil
	}
	s.cancel()
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	if s.state != StateErrored {
		s.state = StateClosed
	}
	return err
}

func attrMap(n *wml.Node) map[string]string {
	out := make(map[string]string, n.Len())
	for _, a := range n.Attrs() {
		out[a.Key] = a.Value
	}
	return out
}
