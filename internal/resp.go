package internal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ReplyKind identifies a RESP2 reply type.
type ReplyKind int

const (
	SimpleString ReplyKind = iota
	ErrorReply
	Integer
	BulkString
	Array
	Nil
)

// Reply is a single decoded RESP2 reply.
type Reply struct {
	Kind  ReplyKind
	Str   []byte
	Int   int64
	Elems []Reply
}

var ErrProtocol = errors.New("protocol error")

// WriteCommand encodes args as a RESP array of bulk strings.
func WriteCommand(w *bufio.Writer, args [][]byte) error {
	if _, err := w.WriteString("*" + strconv.Itoa(len(args)) + "\r\n"); err != nil {
		return err
	}
	for _, a := range args {
		if err := WriteBulk(w, a); err != nil {
			return err
		}
	}
	return nil
}

// WriteBulk writes a bulk string, or the nil bulk string when b is nil.
func WriteBulk(w *bufio.Writer, b []byte) error {
	if b == nil {
		_, err := w.WriteString("$-1\r\n")
		return err
	}
	if _, err := w.WriteString("$" + strconv.Itoa(len(b)) + "\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

func WriteSimple(w *bufio.Writer, s string) error {
	_, err := w.WriteString("+" + s + "\r\n")
	return err
}

func WriteError(w *bufio.Writer, msg string) error {
	_, err := w.WriteString("-" + msg + "\r\n")
	return err
}

func WriteInt(w *bufio.Writer, n int64) error {
	_, err := w.WriteString(":" + strconv.FormatInt(n, 10) + "\r\n")
	return err
}

func WriteArrayHeader(w *bufio.Writer, n int) error {
	_, err := w.WriteString("*" + strconv.Itoa(n) + "\r\n")
	return err
}

// ReadReply reads exactly one reply, including nested array elements.
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, fmt.Errorf("%w: empty line", ErrProtocol)
	}
	switch line[0] {
	case '+':
		return Reply{Kind: SimpleString, Str: []byte(line[1:])}, nil
	case '-':
		return Reply{Kind: ErrorReply, Str: []byte(line[1:])}, nil
	case ':':
		n, err := strconv.ParseInt(line[1:], 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad integer %q", ErrProtocol, line)
		}
		return Reply{Kind: Integer, Int: n}, nil
	case '$':
		size, err := strconv.Atoi(line[1:])
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad bulk size %q", ErrProtocol, line)
		}
		if size < 0 {
			return Reply{Kind: Nil}, nil
		}
		value := make([]byte, size+2)
		if _, err = io.ReadFull(r, value); err != nil {
			return Reply{}, err
		}
		if value[size] != '\r' || value[size+1] != '\n' {
			return Reply{}, fmt.Errorf("%w: bulk string not terminated", ErrProtocol)
		}
		return Reply{Kind: BulkString, Str: value[:size]}, nil
	case '*':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad array size %q", ErrProtocol, line)
		}
		if n < 0 {
			return Reply{Kind: Nil}, nil
		}
		elems := make([]Reply, 0, n)
		for i := 0; i < n; i++ {
			e, err := ReadReply(r)
			if err != nil {
				return Reply{}, err
			}
			elems = append(elems, e)
		}
		return Reply{Kind: Array, Elems: elems}, nil
	default:
		return Reply{}, fmt.Errorf("%w: unexpected type byte %q", ErrProtocol, line[0])
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", fmt.Errorf("%w: line not terminated by CRLF", ErrProtocol)
	}
	return line[:len(line)-2], nil
}
