// Package storetest runs an in-process store speaking the same RESP subset
// as the client, for tests that need a real socket without a container.
package storetest

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jsp-lqk/metapipe-grid/internal"
)

type item struct {
	value    []byte
	deadline time.Time
}

func (i item) expired(now time.Time) bool {
	return !i.deadline.IsZero() && !now.Before(i.deadline)
}

// Server is a minimal RESP key/value store holding plain values and hashes.
type Server struct {
	ln net.Listener

	mu           sync.Mutex
	values       map[string]item
	hashes       map[string]map[string]item
	counts       map[string]int
	conns        map[net.Conn]struct{}
	ignoreExpiry bool
	mutePings    bool
	password     string
	rejects      map[string]string

	wg sync.WaitGroup
}

// Start listens on a random loopback port and stops the server when the
// test ends.
func Start(t testing.TB) *Server {
	t.Helper()
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func New() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:      ln,
		values:  make(map[string]item),
		hashes:  make(map[string]map[string]item),
		counts:  make(map[string]int),
		conns:   make(map[net.Conn]struct{}),
		rejects: make(map[string]string),
	}
	s.wg.Add(1)
	go s.accept()
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops accepting and drops every open connection.
func (s *Server) Close() {
	s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
}

// DropConnections closes every client connection while keeping the
// listener open, so clients can redial.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

// IgnoreExpiry keeps expired entries readable, imitating a store whose
// eviction has not run yet.
func (s *Server) IgnoreExpiry(ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreExpiry = ignore
}

// MutePings makes the server swallow PING without replying.
func (s *Server) MutePings(mute bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutePings = mute
}

// Reject answers every cmd with the error reply msg until called again with
// an empty msg.
func (s *Server) Reject(cmd, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd = strings.ToUpper(cmd)
	if msg == "" {
		delete(s.rejects, cmd)
		return
	}
	s.rejects[cmd] = msg
}

func (s *Server) RequirePassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = password
}

// Count returns how many times the named command was received.
func (s *Server) Count(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[strings.ToUpper(cmd)]
}

// Total returns the number of data commands received, excluding PING.
func (s *Server) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for cmd, c := range s.counts {
		if cmd != "PING" {
			n += c
		}
	}
	return n
}

// Raw returns the stored bytes ignoring any expiry.
func (s *Server) Raw(key, field string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field == "" {
		it, ok := s.values[key]
		return it.value, ok
	}
	it, ok := s.hashes[key][field]
	return it.value, ok
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
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	authed := false
	for {
		req, err := internal.ReadReply(r)
		if err != nil {
			return
		}
		if req.Kind != internal.Array || len(req.Elems) == 0 {
			internal.WriteError(w, "ERR protocol error")
		} else {
			args := make([][]byte, len(req.Elems))
			for i, e := range req.Elems {
				args[i] = e.Str
			}
			s.exec(w, args, &authed)
		}
		if r.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

var errWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// exec runs one command and reports whether a reply was written.
func (s *Server) exec(w *bufio.Writer, args [][]byte, authed *bool) bool {
	cmd := strings.ToUpper(string(args[0]))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[cmd]++
	now := time.Now()

	if s.password != "" && !*authed && cmd != "AUTH" && cmd != "PING" {
		internal.WriteError(w, "NOAUTH Authentication required.")
		return true
	}
	if msg, ok := s.rejects[cmd]; ok {
		internal.WriteError(w, msg)
		return true
	}

	switch cmd {
	case "PING":
		if s.mutePings {
			return false
		}
		internal.WriteSimple(w, "PONG")
	case "AUTH":
		pw := string(args[len(args)-1])
		if s.password != "" && pw != s.password {
			internal.WriteError(w, "WRONGPASS invalid username-password pair")
			return true
		}
		*authed = true
		internal.WriteSimple(w, "OK")
	case "SELECT":
		internal.WriteSimple(w, "OK")
	case "GET":
		if !arity(w, args, 2) {
			return true
		}
		if _, ok := s.hashes[string(args[1])]; ok {
			internal.WriteError(w, errWrongType.Error())
			return true
		}
		it, ok := s.lookup(string(args[1]), now)
		if !ok {
			internal.WriteBulk(w, nil)
			return true
		}
		internal.WriteBulk(w, it.value)
	case "SET":
		if len(args) != 3 && len(args) != 5 {
			internal.WriteError(w, "ERR syntax error")
			return true
		}
		key := string(args[1])
		delete(s.hashes, key)
		it := item{value: append([]byte(nil), args[2]...)}
		if len(args) == 5 {
			d, err := ttlArg(args[3], args[4])
			if err != nil {
				internal.WriteError(w, err.Error())
				return true
			}
			it.deadline = now.Add(d)
		}
		s.values[key] = it
		internal.WriteSimple(w, "OK")
	case "DEL":
		var n int64
		for _, k := range args[1:] {
			key := string(k)
			if _, ok := s.lookup(key, now); ok {
				n++
			} else if _, ok := s.hashes[key]; ok {
				n++
			}
			delete(s.values, key)
			delete(s.hashes, key)
		}
		internal.WriteInt(w, n)
	case "HGET":
		if !arity(w, args, 3) {
			return true
		}
		if _, ok := s.values[string(args[1])]; ok {
			internal.WriteError(w, errWrongType.Error())
			return true
		}
		it, ok := s.lookupField(string(args[1]), string(args[2]), now)
		if !ok {
			internal.WriteBulk(w, nil)
			return true
		}
		internal.WriteBulk(w, it.value)
	case "HSET":
		if len(args) < 4 || len(args)%2 != 0 {
			internal.WriteError(w, "ERR wrong number of arguments for 'hset' command")
			return true
		}
		key := string(args[1])
		if _, ok := s.values[key]; ok {
			internal.WriteError(w, errWrongType.Error())
			return true
		}
		h, ok := s.hashes[key]
		if !ok {
			h = make(map[string]item)
			s.hashes[key] = h
		}
		var added int64
		for i := 2; i < len(args); i += 2 {
			f := string(args[i])
			if _, exists := h[f]; !exists {
				added++
			}
			h[f] = item{value: append([]byte(nil), args[i+1]...)}
		}
		internal.WriteInt(w, added)
	case "HPEXPIRE":
		// HPEXPIRE key ms FIELDS n field...
		if len(args) < 6 || strings.ToUpper(string(args[3])) != "FIELDS" {
			internal.WriteError(w, "ERR syntax error")
			return true
		}
		ms, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil || ms <= 0 {
			internal.WriteError(w, "ERR invalid expire time")
			return true
		}
		fields := args[5:]
		h := s.hashes[string(args[1])]
		internal.WriteArrayHeader(w, len(fields))
		for _, f := range fields {
			it, ok := h[string(f)]
			if !ok {
				internal.WriteInt(w, -2)
				continue
			}
			it.deadline = now.Add(time.Duration(ms) * time.Millisecond)
			h[string(f)] = it
			internal.WriteInt(w, 1)
		}
	case "HDEL":
		if len(args) < 3 {
			internal.WriteError(w, "ERR wrong number of arguments for 'hdel' command")
			return true
		}
		key := string(args[1])
		var n int64
		for _, f := range args[2:] {
			if _, ok := s.lookupField(key, string(f), now); ok {
				n++
			}
			delete(s.hashes[key], string(f))
		}
		if h, ok := s.hashes[key]; ok && len(h) == 0 {
			delete(s.hashes, key)
		}
		internal.WriteInt(w, n)
	default:
		internal.WriteError(w, "ERR unknown command '"+cmd+"'")
	}
	return true
}

func (s *Server) lookup(key string, now time.Time) (item, bool) {
	it, ok := s.values[key]
	if !ok {
		return item{}, false
	}
	if it.expired(now) && !s.ignoreExpiry {
		delete(s.values, key)
		return item{}, false
	}
	return it, true
}

func (s *Server) lookupField(key, field string, now time.Time) (item, bool) {
	it, ok := s.hashes[key][field]
	if !ok {
		return item{}, false
	}
	if it.expired(now) && !s.ignoreExpiry {
		delete(s.hashes[key], field)
		return item{}, false
	}
	return it, true
}

func arity(w *bufio.Writer, args [][]byte, n int) bool {
	if len(args) != n {
		internal.WriteError(w, "ERR wrong number of arguments for '"+strings.ToLower(string(args[0]))+"' command")
		return false
	}
	return true
}

func ttlArg(unit, amount []byte) (time.Duration, error) {
	n, err := strconv.ParseInt(string(amount), 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.New("ERR invalid expire time in 'set' command")
	}
	switch strings.ToUpper(string(unit)) {
	case "PX":
		return time.Duration(n) * time.Millisecond, nil
	case "EX":
		return time.Duration(n) * time.Second, nil
	}
	return 0, errors.New("ERR syntax error")
}
