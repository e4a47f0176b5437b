package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edwingeng/deque/v2"
	"github.com/google/uuid"
)

type pending struct {
	want            int
	responseChannel chan Result
}

// BaseTCPClient is one pipelined connection. Writers append to the deque in
// the same order their bytes reach the socket, and a single listener pops
// the oldest entry for every reply it reads.
type BaseTCPClient struct {
	Endpoint
	session        string
	maxOutstanding int
	writeTimeout   time.Duration
	logger         *slog.Logger

	conn net.Conn
	rw   *bufio.ReadWriter

	wmu sync.Mutex // guards rw.Writer

	mu     sync.Mutex // guards deque and closed
	deque  *deque.Deque[pending]
	closed bool

	healthy  atomic.Bool
	shutOnce sync.Once
	done     chan struct{}
}

func NewBaseTCPClient(ctx context.Context, e Endpoint, o Options) (*BaseTCPClient, error) {
	o = o.withDefaults()
	d := net.Dialer{Timeout: o.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", e.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s - %w", e.Address, err)
	}
	tc := &BaseTCPClient{
		Endpoint:       e,
		session:        uuid.NewString(),
		maxOutstanding: o.MaxOutstandingRequests,
		writeTimeout:   o.Timeout,
		logger:         o.Logger,
		conn:           conn,
		rw:             bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		deque:          deque.NewDeque[pending](),
		done:           make(chan struct{}),
	}
	tc.healthy.Store(true)
	go tc.listen()

	if err := tc.handshake(ctx, o.Timeout); err != nil {
		tc.Close()
		return nil, err
	}
	tc.logger.Debug("connection established", "addr", e.Address, "session", tc.session)
	return tc, nil
}

func (tc *BaseTCPClient) handshake(ctx context.Context, timeout time.Duration) error {
	var cmds [][][]byte
	if tc.Password != "" {
		if tc.Username != "" {
			cmds = append(cmds, [][]byte{[]byte("AUTH"), []byte(tc.Username), []byte(tc.Password)})
		} else {
			cmds = append(cmds, [][]byte{[]byte("AUTH"), []byte(tc.Password)})
		}
	}
	if tc.Database != 0 {
		cmds = append(cmds, [][]byte{[]byte("SELECT"), []byte(fmt.Sprint(tc.Database))})
	}
	if len(cmds) == 0 {
		return nil
	}
	res := tc.Await(ctx, tc.Dispatch(cmds...), timeout)
	if res.Err != nil {
		return fmt.Errorf("handshake with %s: %w", tc.Address, res.Err)
	}
	for _, r := range res.Replies {
		if r.Kind == ErrorReply {
			return fmt.Errorf("handshake with %s: %w", tc.Address, &StoreError{Message: string(r.Str)})
		}
	}
	return nil
}

// Session identifies this physical connection in logs.
func (tc *BaseTCPClient) Session() string {
	return tc.session
}

func (tc *BaseTCPClient) Healthy() bool {
	return tc.healthy.Load()
}

// Dispatch writes cmds as one contiguous batch and returns a channel that
// receives all of their replies. Once Dispatch returns, the batch is ordered
// before any batch dispatched later on this connection.
func (tc *BaseTCPClient) Dispatch(cmds ...[][]byte) <-chan Result {
	rc := make(chan Result, 1)

	tc.wmu.Lock()
	defer tc.wmu.Unlock()

	tc.mu.Lock()
	if tc.closed {
		tc.mu.Unlock()
		rc <- Result{Err: ErrConnectionReset}
		return rc
	}
	if tc.deque.Len() >= tc.maxOutstanding {
		tc.mu.Unlock()
		rc <- Result{Err: ErrConnectionOverloaded}
		return rc
	}
	tc.deque.PushFront(pending{want: len(cmds), responseChannel: rc})
	tc.mu.Unlock()

	if tc.writeTimeout > 0 {
		tc.conn.SetWriteDeadline(time.Now().Add(tc.writeTimeout))
	}
	for _, c := range cmds {
		if err := WriteCommand(tc.rw.Writer, c); err != nil {
			tc.shutdown(fmt.Errorf("%w: %v", ErrConnectionReset, err))
			return rc
		}
	}
	if err := tc.rw.Flush(); err != nil {
		tc.shutdown(fmt.Errorf("%w: %v", ErrConnectionReset, err))
	}
	return rc
}

// Await blocks until the batch completes, ctx is done or timeout elapses.
// A zero timeout waits for ctx alone.
func (tc *BaseTCPClient) Await(ctx context.Context, rc <-chan Result, timeout time.Duration) Result {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case r := <-rc:
		return r
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case <-expired:
		return Result{Err: ErrRequestTimeout}
	}
}

func (tc *BaseTCPClient) Close() {
	tc.shutdown(ErrClosed)
	<-tc.done
}

// Fail marks the connection unhealthy and fails everything outstanding.
func (tc *BaseTCPClient) Fail(err error) {
	tc.shutdown(err)
}

func (tc *BaseTCPClient) shutdown(cause error) {
	tc.shutOnce.Do(func() {
		tc.healthy.Store(false)
		tc.conn.Close()

		// on connection loss, clean up the deque
		tc.mu.Lock()
		tc.closed = true
		for tc.deque.Len() > 0 {
			r := tc.deque.PopBack()
			r.responseChannel <- Result{Err: cause}
		}
		tc.mu.Unlock()
		if !errors.Is(cause, ErrClosed) {
			tc.logger.Warn("connection reset", "addr", tc.Address, "session", tc.session, "cause", cause)
		}
	})
}

func (tc *BaseTCPClient) listen() {
	defer close(tc.done)
	reader := tc.rw.Reader
	for {
		reply, err := ReadReply(reader)
		if err != nil {
			tc.shutdown(fmt.Errorf("%w: %v", ErrConnectionReset, err))
			return
		}
		tc.mu.Lock()
		if tc.deque.Len() == 0 {
			tc.mu.Unlock()
			tc.shutdown(fmt.Errorf("%w: reply without outstanding request", ErrProtocol))
			return
		}
		req := tc.deque.PopBack()
		tc.mu.Unlock()

		replies := make([]Reply, 1, req.want)
		replies[0] = reply
		for len(replies) < req.want {
			next, err := ReadReply(reader)
			if err != nil {
				cause := fmt.Errorf("%w: %v", ErrConnectionReset, err)
				req.responseChannel <- Result{Err: cause}
				tc.shutdown(cause)
				return
			}
			replies = append(replies, next)
		}
		req.responseChannel <- Result{Replies: replies}
	}
}
