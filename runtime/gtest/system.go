// Package gtest runs programs in process, block by block.
//
// Messages sent before or during block N are executed in block N+1. A
// handler awaiting a reply is suspended and resumed in the block the reply is
// processed in, so a reply from another program is observed two blocks after
// the call. Replies and messages to users are delivered immediately.
package gtest

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/kanengo/rigging/internal/cond"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/logging"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
)

// BlockRunMode decides who runs blocks while an Env future is awaited.
type BlockRunMode int

const (
	// RunAuto runs blocks until the reply arrives.
	RunAuto BlockRunMode = iota
	// RunNext runs a single block and fails if the reply did not arrive.
	RunNext
	// RunManual waits for blocks run by someone else.
	RunManual
)

const DefaultMaxBlocks = 1000

// DefaultUserBalance is minted to DefaultUser by NewSystem.
var DefaultUserBalance = uint256.NewInt(1_000_000_000_000_000_000)

type Option func(*System)

func WithLogger(l *slog.Logger) Option {
	return func(s *System) { s.logger = l }
}

func WithRunMode(m BlockRunMode) Option {
	return func(s *System) { s.mode = m }
}

// WithMaxBlocks bounds how many blocks RunAuto runs for one reply.
func WithMaxBlocks(n int) Option {
	return func(s *System) { s.maxBlocks = n }
}

// WithBlockObserver registers fn to be called with the result of every block.
func WithBlockObserver(fn func(BlockRunResult)) Option {
	return func(s *System) { s.observers = append(s.observers, fn) }
}

type programStatus int

const (
	statusUninitialized programStatus = iota
	statusActive
	statusInitFailed
	statusExited
)

func (s programStatus) String() string {
	switch s {
	case statusUninitialized:
		return "uninitialized"
	case statusActive:
		return "active"
	case statusInitFailed:
		return "init failed"
	case statusExited:
		return "exited"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type program struct {
	id        scale.ActorID
	code      scale.CodeID
	actor     host.Actor
	status    programStatus
	inheritor scale.ActorID
}

// MessageRecord is a message as sent through the system.
type MessageRecord struct {
	ID          scale.MessageID
	Source      scale.ActorID
	Destination scale.ActorID
	Payload     []byte
	Value       scale.U128
	// Block is the height the message was sent at.
	Block   uint32
	IsReply bool
	ReplyTo scale.MessageID
	Code    remoting.ReplyCode
}

// EventRecord is a payload a program sent to the zero address.
type EventRecord struct {
	Block   uint32
	Source  scale.ActorID
	Payload []byte
}

// BlockRunResult describes what happened in one block.
type BlockRunResult struct {
	Height uint32
	// Executed lists the messages whose handling completed, in order.
	Executed  []scale.MessageID
	Succeed   map[scale.MessageID]bool
	Failed    map[scale.MessageID]bool
	GasBurned map[scale.MessageID]uint64
	// ReplyCodes is keyed by the replied message.
	ReplyCodes map[scale.MessageID]remoting.ReplyCode
	Events     []EventRecord
	// Sent lists the messages sent in the block, preceded by those sent
	// from outside since the previous block.
	Sent []MessageRecord
}

func (r *BlockRunResult) Succeeded(id scale.MessageID) bool { return r.Succeed[id] }

func (r *BlockRunResult) ContainsFailed(id scale.MessageID) bool { return r.Failed[id] }

type message struct {
	MessageRecord
	gasLimit uint64
	init     bool
}

// awaiter tracks the reply of one outgoing message.
type awaiter struct {
	msg      *message
	args     remoting.Args
	deadline uint32
	exactly  bool
	hookDone bool

	done     bool
	reply    remoting.Reply
	err      error
	buffered *remoting.Reply
	waiter   *execution
}

type sleeper struct {
	x     *execution
	until uint32
}

// System is an in-process runtime. It is safe for concurrent use; blocks
// execute one message at a time.
type System struct {
	mu        sync.Mutex
	blocks    *cond.Cond
	logger    *slog.Logger
	mode      BlockRunMode
	maxBlocks int
	observers []func(BlockRunResult)

	height    uint32
	nonce     uint64
	closed    bool
	codes     map[scale.CodeID]host.Code
	programs  map[scale.ActorID]*program
	balances  map[scale.ActorID]*uint256.Int
	queue     []*message
	awaits    map[scale.MessageID]*awaiter
	timed     []*awaiter
	sleepers  []sleeper
	suspended map[*execution]bool
	log       []MessageRecord
	staged    []MessageRecord
	events    []EventRecord
	mailbox   map[scale.ActorID][]MessageRecord
	replies   map[scale.MessageID]MessageRecord
	subs      map[*subscriber]bool
	result    *BlockRunResult
}

func NewSystem(opts ...Option) *System {
	s := &System{
		maxBlocks: DefaultMaxBlocks,
		codes:     map[scale.CodeID]host.Code{},
		programs:  map[scale.ActorID]*program{},
		balances:  map[scale.ActorID]*uint256.Int{},
		awaits:    map[scale.MessageID]*awaiter{},
		suspended: map[*execution]bool{},
		mailbox:   map[scale.ActorID][]MessageRecord{},
		replies:   map[scale.MessageID]MessageRecord{},
		subs:      map[*subscriber]bool{},
	}
	s.blocks = cond.NewCond(&s.mu)
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.balances[DefaultUser] = new(uint256.Int).Set(DefaultUserBalance)
	return s
}

// UploadCode makes code available for activation.
func (s *System) UploadCode(code host.Code) scale.CodeID {
	id := CodeIDOf(code.Name())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[id] = code
	return id
}

// Mint credits amount to id.
func (s *System) Mint(id scale.ActorID, amount *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credit(id, amount)
}

// Balance returns the balance of id.
func (s *System) Balance(id scale.ActorID) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[id]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// BlockHeight returns the height of the last executed block.
func (s *System) BlockHeight() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// IsProgram reports whether id is an active program.
func (s *System) IsProgram(id scale.ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programs[id]
	return ok && p.status == statusActive
}

// Inheritor returns the actor an exited program left its balance to.
func (s *System) Inheritor(id scale.ActorID) (scale.ActorID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programs[id]
	if !ok || p.status != statusExited {
		return scale.ActorID{}, false
	}
	return p.inheritor, true
}

// Messages returns every message sent so far, replies included, in order.
func (s *System) Messages() []MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MessageRecord(nil), s.log...)
}

// Events returns every event emitted so far.
func (s *System) Events() []EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EventRecord(nil), s.events...)
}

// Mailbox returns the messages programs sent to user id.
func (s *System) Mailbox(id scale.ActorID) []MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MessageRecord(nil), s.mailbox[id]...)
}

// ReplyOf returns the reply to a message sent by a user.
func (s *System) ReplyOf(id scale.MessageID) (MessageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replies[id]
	return r, ok
}

// RunNextBlock executes the next block.
func (s *System) RunNextBlock() BlockRunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runBlock()
}

// RunToBlock executes blocks until height is reached.
func (s *System) RunToBlock(height uint32) []BlockRunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []BlockRunResult
	for s.height < height {
		out = append(out, s.runBlock())
	}
	return out
}

// Close resumes every suspended handler with remoting.ErrClosed. Blocks can
// no longer run.
func (s *System) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for x := range s.suspended {
		s.resume(x, remoting.ErrClosed)
	}
	s.blocks.Broadcast()
}

func (s *System) runBlock() BlockRunResult {
	if s.closed {
		return BlockRunResult{Height: s.height}
	}
	s.height++
	res := &BlockRunResult{
		Height:     s.height,
		Succeed:    map[scale.MessageID]bool{},
		Failed:     map[scale.MessageID]bool{},
		GasBurned:  map[scale.MessageID]uint64{},
		ReplyCodes: map[scale.MessageID]remoting.ReplyCode{},
		Sent:       s.staged,
	}
	s.staged = nil
	s.result = res
	defer func() { s.result = nil }()

	var wake []*execution
	sleepers := s.sleepers[:0]
	for _, sl := range s.sleepers {
		if sl.until <= s.height {
			wake = append(wake, sl.x)
			continue
		}
		sleepers = append(sleepers, sl)
	}
	s.sleepers = sleepers
	for _, x := range wake {
		s.resume(x, nil)
	}

	queue := s.queue
	s.queue = nil
	for _, m := range queue {
		s.deliver(m)
	}

	timed := s.timed
	s.timed = nil
	for _, a := range timed {
		switch {
		case a.done:
		case a.deadline > s.height:
			s.timed = append(s.timed, a)
		case a.buffered != nil:
			s.resolve(a, *a.buffered, nil)
		default:
			s.resolve(a, remoting.Reply{ReplyTo: a.msg.ID}, remoting.ErrReplyTimeout)
		}
	}

	s.logger.Debug("block executed", "height", s.height, "executed", len(res.Executed), "failed", len(res.Failed))
	for _, fn := range s.observers {
		fn(*res)
	}
	s.blocks.Broadcast()
	return *res
}

func (s *System) credit(id scale.ActorID, amount *uint256.Int) {
	b, ok := s.balances[id]
	if !ok {
		b = new(uint256.Int)
		s.balances[id] = b
	}
	b.Add(b, amount)
}

func (s *System) debit(id scale.ActorID, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	b, ok := s.balances[id]
	if !ok || b.Lt(amount) {
		return remoting.ErrNotEnoughValue
	}
	b.Sub(b, amount)
	return nil
}

func toU256(v scale.U128) *uint256.Int {
	return &uint256.Int{v.Lo, v.Hi, 0, 0}
}

func (s *System) nextMessageID() scale.MessageID {
	s.nonce++
	return messageID(s.nonce)
}

// send debits the value from source, queues the message and registers an
// awaiter for its reply.
func (s *System) send(source, dest scale.ActorID, payload []byte, args remoting.Args) (*message, *awaiter, error) {
	if err := s.debit(source, toU256(args.Value)); err != nil {
		return nil, nil, err
	}
	gas := args.GasLimit
	if gas == 0 {
		gas = DefaultGasLimit
	}
	m := &message{
		MessageRecord: MessageRecord{
			ID:          s.nextMessageID(),
			Source:      source,
			Destination: dest,
			Payload:     payload,
			Value:       args.Value,
			Block:       s.height,
		},
		gasLimit: gas,
	}
	s.enqueue(m)

	a := &awaiter{msg: m, args: args}
	if d := args.Deadline(); d > 0 {
		a.deadline = s.height + d
		a.exactly = args.WaitLock != nil && args.WaitLock.Type == remoting.WaitExactly
		s.timed = append(s.timed, a)
	}
	s.awaits[m.ID] = a
	return m, a, nil
}

func (s *System) enqueue(m *message) {
	s.log = append(s.log, m.MessageRecord)
	if s.result != nil {
		s.result.Sent = append(s.result.Sent, m.MessageRecord)
	} else {
		s.staged = append(s.staged, m.MessageRecord)
	}
	if _, ok := s.programs[m.Destination]; !ok {
		// users have no handler
		s.deliver(m)
		return
	}
	s.queue = append(s.queue, m)
}

// activate registers a new program from code and sends it the init message.
func (s *System) activate(source scale.ActorID, code scale.CodeID, salt, payload []byte, args remoting.Args) (scale.ActorID, *awaiter, error) {
	c, ok := s.codes[code]
	if !ok {
		return scale.ActorID{}, nil, remoting.ErrCodeNotFound
	}
	if salt == nil {
		salt = []byte(gonanoid.Must())
	}
	id := ProgramIDOf(code, salt)
	if _, ok := s.programs[id]; ok {
		return scale.ActorID{}, nil, remoting.ErrProgramExists
	}
	s.programs[id] = &program{id: id, code: code, actor: c.Instantiate()}
	m, a, err := s.send(source, id, payload, args)
	if err != nil {
		delete(s.programs, id)
		return scale.ActorID{}, nil, err
	}
	m.init = true
	s.logger.Debug("program activated", "code", c.Name(), "program", id.String())
	return id, a, nil
}

func (s *System) deliver(m *message) {
	if m.IsReply {
		s.deliverReply(m)
		return
	}
	p, ok := s.programs[m.Destination]
	if !ok {
		s.credit(m.Destination, toU256(m.Value))
		s.mailbox[m.Destination] = append(s.mailbox[m.Destination], m.MessageRecord)
		return
	}
	switch {
	case p.status == statusExited:
		s.bounce(m, remoting.UnavailableActorCode(remoting.ProgramExited), p.inheritor[:])
		return
	case p.status == statusInitFailed:
		s.bounce(m, remoting.UnavailableActorCode(remoting.InitializationFailure), nil)
		return
	case p.status == statusUninitialized && !m.init:
		s.bounce(m, remoting.UnavailableActorCode(remoting.Uninitialized), nil)
		return
	}
	s.credit(p.id, toU256(m.Value))

	x := s.newExecution(p, m, false)
	if cost := messageCost(m.Payload); cost > m.gasLimit {
		x.gasUsed = m.gasLimit
		x.outOfGas = true
		x.finished = true
		s.settle(x)
		return
	}
	s.start(x)
}

// bounce replies to m on behalf of its destination without running it.
func (s *System) bounce(m *message, code remoting.ReplyCode, payload []byte) {
	if s.result != nil {
		s.result.Executed = append(s.result.Executed, m.ID)
		s.result.Failed[m.ID] = true
		s.result.ReplyCodes[m.ID] = code
	}
	s.enqueue(&message{MessageRecord: MessageRecord{
		ID:          s.nextMessageID(),
		Source:      m.Destination,
		Destination: m.Source,
		Payload:     payload,
		Value:       m.Value,
		Block:       s.height,
		IsReply:     true,
		ReplyTo:     m.ID,
		Code:        code,
	}})
}

func (s *System) deliverReply(m *message) {
	s.credit(m.Destination, toU256(m.Value))
	if _, ok := s.programs[m.Destination]; !ok {
		s.replies[m.ReplyTo] = m.MessageRecord
	}
	a, ok := s.awaits[m.ReplyTo]
	if !ok {
		return
	}
	delete(s.awaits, m.ReplyTo)
	r := remoting.Reply{
		MessageID: m.ID,
		ReplyTo:   m.ReplyTo,
		Source:    m.Source,
		Payload:   m.Payload,
		Value:     m.Value,
		Code:      m.Code,
	}

	if a.args.RedirectOnExit && m.Code.IsExited() && !a.done {
		if inheritor, ok := scale.ActorIDFromBytes(m.Payload); ok {
			nm, _, err := s.send(a.msg.Source, inheritor, a.msg.Payload, remoting.Args{Value: a.msg.Value, GasLimit: a.msg.gasLimit})
			if err == nil {
				// the new message inherits the awaiter, its hook fires on the final reply
				delete(s.awaits, nm.ID)
				a.msg = nm
				s.awaits[nm.ID] = a
				return
			}
			s.logger.Warn("redirect failed", "message", m.ReplyTo.String(), "err", err)
		}
	}

	if a.args.ReplyHook != nil && !a.hookDone {
		a.hookDone = true
		a.args.ReplyHook(r)
	}
	switch {
	case a.done:
	case a.exactly:
		a.buffered = &r
	default:
		s.resolve(a, r, nil)
	}
}

func (s *System) resolve(a *awaiter, r remoting.Reply, err error) {
	if a.done {
		return
	}
	a.done, a.reply, a.err = true, r, err
	if x := a.waiter; x != nil {
		a.waiter = nil
		s.resume(x, nil)
	}
}

func (s *System) emit(source scale.ActorID, payload []byte) {
	ev := EventRecord{Block: s.height, Source: source, Payload: payload}
	s.events = append(s.events, ev)
	if s.result != nil {
		s.result.Events = append(s.result.Events, ev)
	}
	for sub := range s.subs {
		sub.push(remoting.Event{Source: source, Payload: payload})
	}
}
