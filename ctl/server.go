package ctl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/metrics"
)

// connHandler serves one accepted connection until it closes.
type connHandler interface {
	handleConn(ctx context.Context, conn net.Conn)
}

// listener accepts connections on one unix-domain socket and hands each
// to the port's handler. The shape follows the event socket servers
// elsewhere in this ecosystem: Listen binds early so clients can connect
// before Serve starts accepting.
type listener struct {
	filename     string
	handler      connHandler
	unixListener net.Listener
	servingWG    sync.WaitGroup
}

func newListener(filename string, handler connHandler) *listener {
	return &listener{filename: filename, handler: handler}
}

// Listen binds the socket. Stale socket files from an unclean shutdown
// are removed first.
func (l *listener) Listen() error {
	l.servingWG.Add(1)
	var err error
	os.Remove(l.filename)
	l.unixListener, err = net.Listen("unix", l.filename)
	return err
}

// Serve accepts clients until the context is canceled. It is expected to
// be called in a goroutine, after Listen.
func (l *listener) Serve(ctx context.Context) error {
	defer l.servingWG.Done()
	derivedCtx, derivedCancel := context.WithCancel(ctx)
	defer derivedCancel()

	l.servingWG.Add(1)
	go func() {
		<-derivedCtx.Done()
		l.unixListener.Close()
		l.servingWG.Done()
	}()

	var err error
	for derivedCtx.Err() == nil {
		var conn net.Conn
		conn, err = l.unixListener.Accept()
		if err != nil {
			if derivedCtx.Err() != nil {
				break
			}
			log.Printf("could not accept on socket %q: %s", l.filename, err)
			continue
		}
		l.servingWG.Add(1)
		go func() {
			defer l.servingWG.Done()
			defer conn.Close()
			l.handler.handleConn(derivedCtx, conn)
		}()
	}
	return err
}

// Wait blocks until Serve and all connection handlers have finished.
func (l *listener) Wait() {
	l.servingWG.Wait()
}

// errString folds the service error kinds into stable wire strings so
// clients can classify failures without string matching on details.
func errString(err error) string {
	for _, kind := range []error{
		inet.ErrInvalid, inet.ErrOverflow, inet.ErrNoRoute, inet.ErrNotFound,
		inet.ErrDuplicate, inet.ErrNotSupported, inet.ErrNoMemory, inet.ErrLinkFailure,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return err.Error()
}

// connWriter serializes response and event lines onto one connection.
type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connWriter) writeLine(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.conn, string(b))
	return err
}

func (w *connWriter) reply(id int64, result interface{}, err error) {
	resp := Response{ID: id}
	if err != nil {
		resp.Error = errString(err)
	} else if result != nil {
		b, merr := json.Marshal(result)
		if merr != nil {
			resp.Error = merr.Error()
		} else {
			resp.Result = b
		}
	}
	if werr := w.writeLine(&resp); werr != nil {
		log.Println("control reply failed:", werr)
	}
}

// serveCalls reads request lines from the connection and dispatches each
// through fn until the connection closes or the context is done.
func serveCalls(ctx context.Context, conn net.Conn, port string,
	fn func(w *connWriter, req *Request)) {

	w := &connWriter{conn: conn}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s := bufio.NewScanner(conn)
	s.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for s.Scan() {
		var req Request
		if err := json.Unmarshal(s.Bytes(), &req); err != nil {
			log.Printf("bad control line on %s port: %v", port, err)
			continue
		}
		metrics.ControlCalls.WithLabelValues(port, req.Method).Inc()
		fn(w, &req)
	}
}

func unmarshalParams(req *Request, v interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("%w: missing params", inet.ErrInvalid)
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return fmt.Errorf("%w: %v", inet.ErrInvalid, err)
	}
	return nil
}
