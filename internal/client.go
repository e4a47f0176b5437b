package internal

import (
	"fmt"
	"strconv"
	"time"
)

// Endpoint is an immutable connection target.
type Endpoint struct {
	Address      string // host:port
	PingInterval time.Duration
	Username     string
	Password     string
	Database     int
}

// Lane selects which of the two per-endpoint connections carries a request.
type Lane int

const (
	ReadLane Lane = iota
	MutationLane
)

func (l Lane) String() string {
	if l == ReadLane {
		return "read"
	}
	return "mutation"
}

type RequestType int

const (
	GET RequestType = iota
	PUT
	PUT_WITH_TTL
	DELETE
)

func (t RequestType) String() string {
	switch t {
	case GET:
		return "GET"
	case PUT:
		return "PUT"
	case PUT_WITH_TTL:
		return "PUT-WITH-TTL"
	case DELETE:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Request is a logical store operation. Requests with HasField address one
// field of a hash, the others address a single value.
type Request struct {
	Type     RequestType
	Key      string
	Field    string
	HasField bool
	Value    []byte
	TTL      time.Duration
}

type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Response is the interpreted outcome of a Request. Err is set only with
// StatusError and carries the store's error reply.
type Response struct {
	Status Status
	Value  []byte
	Err    error
}

// Result is what a connection delivers for one dispatched batch of commands.
type Result struct {
	Replies []Reply
	Err     error
}

func (r Request) Lane() Lane {
	if r.Type == GET {
		return ReadLane
	}
	return MutationLane
}

// Commands translates the request into the RESP commands that implement it.
func (r Request) Commands() [][][]byte {
	key := []byte(r.Key)
	field := []byte(r.Field)
	switch r.Type {
	case GET:
		if r.HasField {
			return [][][]byte{{[]byte("HGET"), key, field}}
		}
		return [][][]byte{{[]byte("GET"), key}}
	case PUT:
		if r.HasField {
			return [][][]byte{{[]byte("HSET"), key, field, r.Value}}
		}
		return [][][]byte{{[]byte("SET"), key, r.Value}}
	case PUT_WITH_TTL:
		ms := []byte(strconv.FormatInt(ttlMillis(r.TTL), 10))
		if r.HasField {
			return [][][]byte{
				{[]byte("HSET"), key, field, r.Value},
				{[]byte("HPEXPIRE"), key, ms, []byte("FIELDS"), []byte("1"), field},
			}
		}
		return [][][]byte{{[]byte("SET"), key, r.Value, []byte("PX"), ms}}
	case DELETE:
		if r.HasField {
			return [][][]byte{{[]byte("HDEL"), key, field}}
		}
		return [][][]byte{{[]byte("DEL"), key}}
	}
	return nil
}

func ttlMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}

// Interpret maps the raw replies of Commands back to a Response.
func (r Request) Interpret(replies []Reply) (Response, error) {
	if len(replies) != len(r.Commands()) {
		return Response{}, fmt.Errorf("%w: expected %d replies, got %d", ErrProtocol, len(r.Commands()), len(replies))
	}
	for _, rp := range replies {
		if rp.Kind == ErrorReply {
			return Response{Status: StatusError, Err: &StoreError{Message: string(rp.Str)}}, nil
		}
	}
	first := replies[0]
	switch r.Type {
	case GET:
		switch first.Kind {
		case Nil:
			return Response{Status: StatusNotFound}, nil
		case BulkString:
			return Response{Status: StatusOK, Value: first.Str}, nil
		}
	case PUT, PUT_WITH_TTL:
		switch first.Kind {
		case SimpleString, Integer:
			return Response{Status: StatusOK}, nil
		}
	case DELETE:
		if first.Kind == Integer {
			if first.Int == 0 {
				return Response{Status: StatusNotFound}, nil
			}
			return Response{Status: StatusOK}, nil
		}
	}
	return Response{}, fmt.Errorf("%w: unexpected reply kind %d for %s", ErrProtocol, first.Kind, r.Type)
}
