// Package faktorytest provides an in-process Faktory server for tests.
//
// It implements enough of the protocol for client and worker tests:
// HELLO with optional password, PUSH, FETCH, ACK, FAIL, BEAT, INFO, FLUSH,
// END, BATCH NEW/OPEN/COMMIT/STATUS and TRACK GET/SET. Scheduled jobs
// are queued immediately. Fault injection hooks let tests drop
// connections and send malformed replies.
package faktorytest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/protocol"
)

// Failure is a FAIL payload recorded by the server.
type Failure struct {
	JID       string   `json:"jid"`
	Message   string   `json:"message"`
	ErrorType string   `json:"errtype"`
	Backtrace []string `json:"backtrace"`
}

// Batch is the server's batch record.
type Batch struct {
	BID         string   `json:"bid"`
	ParentBID   string   `json:"parent_bid,omitempty"`
	Description string   `json:"description,omitempty"`
	Success     *job.Job `json:"-"`
	Complete    *job.Job `json:"-"`
	Total       int64    `json:"total"`
	Pending     int64    `json:"pending"`
	CreatedAt   string   `json:"created_at"`
	Committed   bool     `json:"-"`
	Opened      int      `json:"-"`
}

// Server is a fake Faktory server listening on a loopback port.
type Server struct {
	t  testing.TB
	ln net.Listener

	mu         sync.Mutex
	password   string
	salt       string
	iterations int
	version    int

	queues   map[string][]*job.Job
	known    map[string]bool
	inflight map[string]*job.Job
	acked    []string
	failed   []Failure
	batches  map[string]*Batch
	progress map[string]map[string]any
	hellos   []protocol.Hello
	commands []string
	beats    int
	beatSig  string
	dropN    map[string]int
	garbageN map[string]int
	conns    map[net.Conn]struct{}
	nextBID  int

	wg sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithPassword requires clients to authenticate.
func WithPassword(password, salt string, iterations int) Option {
	return func(s *Server) {
		s.password, s.salt, s.iterations = password, salt, iterations
	}
}

// WithVersion sets the protocol version in the greeting.
func WithVersion(v int) Option {
	return func(s *Server) { s.version = v }
}

// New starts a server and stops it when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("faktorytest: listen: %v", err)
	}
	s := &Server{
		t:        t,
		ln:       ln,
		version:  protocol.Version,
		queues:   make(map[string][]*job.Job),
		known:    make(map[string]bool),
		inflight: make(map[string]*job.Job),
		batches:  make(map[string]*Batch),
		progress: make(map[string]map[string]any),
		dropN:    make(map[string]int),
		garbageN: make(map[string]int),
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.accept()
	t.Cleanup(s.Close)
	return s
}

// URL returns the tcp:// URL of the server, without a password.
func (s *Server) URL() string {
	return "tcp://" + s.ln.Addr().String()
}

// Close stops the server and drops every connection.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// DropNext makes the server close the connection instead of replying to
// the next n commands with the given verb.
func (s *Server) DropNext(verb protocol.Verb, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropN[string(verb)] += n
}

// GarbageNext makes the server reply to the next n commands with the
// given verb with an unparseable line.
func (s *Server) GarbageNext(verb protocol.Verb, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.garbageN[string(verb)] += n
}

// SetBeatSignal sets the state returned to subsequent BEATs: "", "quiet"
// or "terminate".
func (s *Server) SetBeatSignal(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beatSig = state
}

// Enqueue places j directly on its queue.
func (s *Server) Enqueue(j *job.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueue(j)
}

// Queue returns a copy of the jobs waiting on name.
func (s *Server) Queue(name string) []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*job.Job(nil), s.queues[name]...)
}

// Acked returns the acknowledged JIDs in order.
func (s *Server) Acked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...)
}

// Failed returns the recorded failures in order.
func (s *Server) Failed() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Failure(nil), s.failed...)
}

// InFlight returns the number of fetched, unacknowledged jobs.
func (s *Server) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Batch returns a copy of the batch record for bid.
func (s *Server) Batch(bid string) (Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[bid]
	if !ok {
		return Batch{}, false
	}
	return *b, true
}

// Progress returns the last TRACK SET payload for jid.
func (s *Server) Progress(jid string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[jid]
}

// Hellos returns every HELLO payload received.
func (s *Server) Hellos() []protocol.Hello {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Hello(nil), s.hellos...)
}

// Commands returns every command line received, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Beats returns the number of BEATs received.
func (s *Server) Beats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beats
}

// Eventually polls cond until it holds or the timeout passes.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

func (s *Server) serve(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	rd := bufio.NewReader(conn)
	wr := bufio.NewWriter(conn)

	greeting := map[string]any{"v": s.version}
	if s.password != "" {
		greeting["s"] = s.salt
		greeting["i"] = s.iterations
	}
	data, _ := json.Marshal(greeting)
	writeLine(wr, "+HI "+string(data))

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb, arg, _ := strings.Cut(line, " ")

		s.mu.Lock()
		s.commands = append(s.commands, line)
		if s.dropN[verb] > 0 {
			s.dropN[verb]--
			s.mu.Unlock()
			return
		}
		if s.garbageN[verb] > 0 {
			s.garbageN[verb]--
			s.mu.Unlock()
			writeLine(wr, "*garbage")
			continue
		}
		reply, end := s.handle(verb, arg)
		s.mu.Unlock()

		if end {
			return
		}
		writeLine(wr, reply)
	}
}

func writeLine(wr *bufio.Writer, line string) {
	_, _ = wr.WriteString(line + "\r\n")
	_ = wr.Flush()
}

func okReply() string { return "+OK" }

func bulk(v any) string {
	data, _ := json.Marshal(v)
	return "$" + strconv.Itoa(len(data)) + "\r\n" + string(data)
}

func errReply(msg string) string { return "-ERR " + msg }

// handle executes one command. s.mu is held.
func (s *Server) handle(verb, arg string) (string, bool) {
	switch protocol.Verb(verb) {
	case protocol.VerbHello:
		var h protocol.Hello
		if err := json.Unmarshal([]byte(arg), &h); err != nil {
			return errReply("invalid HELLO"), false
		}
		if s.password != "" {
			want, _ := protocol.HashPassword(s.password, s.salt, s.iterations)
			if h.PwdHash != want {
				return errReply("Invalid password"), false
			}
		}
		s.hellos = append(s.hellos, h)
		return okReply(), false

	case protocol.VerbPush:
		var j job.Job
		if err := json.Unmarshal([]byte(arg), &j); err != nil {
			return errReply("invalid job"), false
		}
		if j.JID == "" || j.Type == "" {
			return errReply("jobs must have a jid and jobtype"), false
		}
		if s.known[j.JID] {
			return "-NOTUNIQUE Job not unique", false
		}
		if bid := j.BID(); bid != "" {
			if b, ok := s.batches[bid]; ok {
				b.Total++
				b.Pending++
			}
		}
		s.enqueue(&j)
		return okReply(), false

	case protocol.VerbFetch:
		for _, q := range strings.Fields(arg) {
			if jobs := s.queues[q]; len(jobs) > 0 {
				j := jobs[0]
				s.queues[q] = jobs[1:]
				s.inflight[j.JID] = j
				return bulk(j), false
			}
		}
		return "$-1", false

	case protocol.VerbAck:
		var body struct {
			JID string `json:"jid"`
		}
		_ = json.Unmarshal([]byte(arg), &body)
		j, ok := s.inflight[body.JID]
		if !ok {
			return errReply("Job not found " + body.JID), false
		}
		delete(s.inflight, body.JID)
		s.acked = append(s.acked, body.JID)
		s.settle(j)
		return "+OK", false

	case protocol.VerbFail:
		var f Failure
		if err := json.Unmarshal([]byte(arg), &f); err != nil {
			return errReply("invalid failure"), false
		}
		if _, ok := s.inflight[f.JID]; !ok {
			return errReply("Job not found " + f.JID), false
		}
		delete(s.inflight, f.JID)
		s.failed = append(s.failed, f)
		return okReply(), false

	case protocol.VerbBeat:
		s.beats++
		if s.beatSig != "" {
			return bulk(map[string]string{"state": s.beatSig}), false
		}
		return okReply(), false

	case protocol.VerbInfo:
		return bulk(map[string]any{
			"server":  map[string]any{"faktory_version": "1.9.0", "description": "Faktory"},
			"faktory": map[string]any{"total_enqueued": s.enqueued()},
		}), false

	case protocol.VerbFlush:
		s.queues = make(map[string][]*job.Job)
		s.known = make(map[string]bool)
		s.inflight = make(map[string]*job.Job)
		s.batches = make(map[string]*Batch)
		return okReply(), false

	case protocol.VerbEnd:
		return "", true

	case protocol.VerbBatch:
		return s.handleBatch(arg), false

	case protocol.VerbTrack:
		return s.handleTrack(arg), false
	}
	return errReply("Unknown command " + verb), false
}

func (s *Server) enqueue(j *job.Job) {
	if j.Queue == "" {
		j.Queue = job.DefaultQueue
	}
	s.known[j.JID] = true
	s.queues[j.Queue] = append(s.queues[j.Queue], j)
}

func (s *Server) enqueued() int {
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}

// settle decrements the pending count of an acknowledged batch member.
func (s *Server) settle(j *job.Job) {
	if b, ok := s.batches[j.BID()]; ok && b.Pending > 0 {
		b.Pending--
	}
}

func (s *Server) handleBatch(arg string) string {
	sub, rest, _ := strings.Cut(arg, " ")
	switch sub {
	case protocol.BatchNew:
		var def struct {
			ParentBID   string   `json:"parent_bid"`
			Description string   `json:"description"`
			Success     *job.Job `json:"success"`
			Complete    *job.Job `json:"complete"`
		}
		if err := json.Unmarshal([]byte(rest), &def); err != nil {
			return errReply("invalid batch")
		}
		if def.Success == nil && def.Complete == nil {
			return errReply("batch requires a callback")
		}
		if def.ParentBID != "" {
			if _, ok := s.batches[def.ParentBID]; !ok {
				return errReply("parent batch not found")
			}
		}
		s.nextBID++
		bid := fmt.Sprintf("b-%d", s.nextBID)
		s.batches[bid] = &Batch{
			BID:         bid,
			ParentBID:   def.ParentBID,
			Description: def.Description,
			Success:     def.Success,
			Complete:    def.Complete,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		}
		return "+" + bid

	case protocol.BatchOpen:
		b, ok := s.batches[rest]
		if !ok {
			return errReply("batch not found")
		}
		b.Opened++
		b.Committed = false
		return okReply()

	case protocol.BatchCommit:
		b, ok := s.batches[rest]
		if !ok {
			return errReply("batch not found")
		}
		b.Committed = true
		return okReply()

	case protocol.BatchStatus:
		b, ok := s.batches[rest]
		if !ok {
			return errReply("batch not found")
		}
		return bulk(b)
	}
	return errReply("Unknown BATCH subcommand " + sub)
}

func (s *Server) handleTrack(arg string) string {
	sub, rest, _ := strings.Cut(arg, " ")
	switch sub {
	case protocol.TrackSet:
		var p map[string]any
		if err := json.Unmarshal([]byte(rest), &p); err != nil {
			return errReply("invalid progress")
		}
		jid, _ := p["jid"].(string)
		s.progress[jid] = p
		return okReply()
	case protocol.TrackGet:
		p, ok := s.progress[rest]
		if !ok {
			return "$-1"
		}
		return bulk(p)
	}
	return errReply("Unknown TRACK subcommand " + sub)
}
