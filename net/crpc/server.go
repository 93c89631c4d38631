package crpc

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"io"
	"net"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	log "github.com/sirupsen/logrus"
)

var ErrServerClosed = errors.New("crpc: server closed")

// Time a connection gets to finish reading a request whose header arrived before Shutdown.
const shutdownReadGrace = 5 * time.Second

type methodType struct {
	sync.Mutex // protects counters
	method     reflect.Method
	ArgType    reflect.Type
	ReplyType  reflect.Type
	numCalls   uint
}

type service struct {
	name   string                 // name of service
	rcvr   reflect.Value          // receiver of methods for the service
	typ    reflect.Type           // type of the receiver
	method map[string]*methodType // registered methods
}

// Server dispatches CBOR-encoded calls to registered receivers.
// Each accepted connection is served by its own goroutine; calls on one connection are handled in order.
type Server struct {
	listener   net.Listener
	serviceMap sync.Map // map[string]*service

	mu      sync.Mutex // protects following fields
	closing bool
	conns   map[net.Conn]bool // true while a request body is being read
	wg      sync.WaitGroup
}

func NewServer(listener net.Listener) *Server {
	return &Server{
		listener: listener,
		conns:    make(map[net.Conn]bool),
	}
}

// Register publishes the methods of rcvr under the receiver's type name.
func (srv *Server) Register(rcvr any) error {
	return srv.register(rcvr, "", false)
}

// RegisterName is like Register but uses the provided name for the service.
func (srv *Server) RegisterName(name string, rcvr any) error {
	return srv.register(rcvr, name, true)
}

func (srv *Server) register(rcvr any, name string, useName bool) error {
	s := new(service)
	s.typ = reflect.TypeOf(rcvr)
	s.rcvr = reflect.ValueOf(rcvr)
	sname := name
	if !useName {
		sname = reflect.Indirect(s.rcvr).Type().Name()
	}
	if sname == "" {
		s := fmt.Sprintf("crpc.Register: no service name for type %s", s.typ.String())
		log.Error(s)
		return errors.New(s)
	}
	if !useName && !token.IsExported(sname) {
		s := "crpc.Register: type " + sname + " is not exported"
		log.Error(s)
		return errors.New(s)
	}
	s.name = sname

	s.method = suitableMethods(s.typ)
	if len(s.method) == 0 {
		str := "crpc.Register: type " + sname + " has no exported methods of suitable type"
		log.Error(str)
		return errors.New(str)
	}

	if _, dup := srv.serviceMap.LoadOrStore(sname, s); dup {
		return errors.New("crpc: service already defined: " + sname)
	}

	for m := range s.method {
		log.Debugf("crpc.Register: %s.%s", sname, m)
	}

	return nil
}

// Is this type exported or a builtin?
func isExportedOrBuiltinType(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	// PkgPath will be non-empty even for an exported type, so we need to check the type name as well.
	return token.IsExported(t.Name()) || t.PkgPath() == ""
}

// suitableMethods returns the methods of typ shaped as func(args, *reply) error.
// Methods of any other shape are skipped silently, so receivers may carry a local API as well.
func suitableMethods(typ reflect.Type) map[string]*methodType {
	methods := make(map[string]*methodType)
	for m := 0; m < typ.NumMethod(); m++ {
		method := typ.Method(m)
		mtype := method.Type
		if !method.IsExported() {
			continue
		}
		// Method needs three ins: receiver, *args, *reply.
		if mtype.NumIn() != 3 {
			continue
		}
		argType := mtype.In(1)
		if !isExportedOrBuiltinType(argType) {
			continue
		}
		replyType := mtype.In(2)
		if replyType.Kind() != reflect.Pointer || !isExportedOrBuiltinType(replyType) {
			continue
		}
		if mtype.NumOut() != 1 || mtype.Out(0) != reflect.TypeFor[error]() {
			continue
		}
		methods[method.Name] = &methodType{method: method, ArgType: argType, ReplyType: replyType}
	}
	return methods
}

// Addr returns the address the server's listener is bound to.
func (srv *Server) Addr() net.Addr {
	return srv.listener.Addr()
}

// Port returns the TCP port the server listens on, or 0 for non-TCP listeners.
func (srv *Server) Port() int {
	if a, ok := srv.listener.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// Serve accepts connections until ctx is cancelled or Shutdown is called, then drains
// the active connections. It returns nil after a requested shutdown.
func (srv *Server) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			log.Infof("crpc.Server: context cancelled, shutting down listener %s", srv.listener.Addr())
			srv.Shutdown()
		case <-stop:
		}
	}()

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		rw, err := srv.listener.Accept()
		if err != nil {
			if srv.isClosing() {
				srv.wg.Wait()
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				log.Warnf("crpc.Server: accept error on %s: %v; retrying in %v", srv.listener.Addr(), err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			log.Errorf("crpc.Server: critical accept error on %s: %v. Server stopping.", srv.listener.Addr(), err)
			return err
		}

		tempDelay = 0
		if !srv.track(rw) {
			rw.Close()
			continue
		}
		log.Debugf("crpc.Server: accepted connection from %s on %s", rw.RemoteAddr(), srv.listener.Addr())
		go srv.serveConn(rw)
	}
}

// Shutdown stops accepting connections, lets in-flight calls complete and waits for
// every connection goroutine to exit.
func (srv *Server) Shutdown() {
	srv.mu.Lock()
	if srv.closing {
		srv.mu.Unlock()
		srv.wg.Wait()
		return
	}
	srv.closing = true
	if err := srv.listener.Close(); err != nil {
		log.Warnf("crpc.Server: error closing listener %s: %v", srv.listener.Addr(), err)
	}
	// Wake up connections blocked waiting for the next request; writes are unaffected.
	// A connection in the middle of reading a request gets to finish it.
	for c, reading := range srv.conns {
		if reading {
			_ = c.SetReadDeadline(time.Now().Add(shutdownReadGrace))
		} else {
			_ = c.SetReadDeadline(time.Now())
		}
	}
	srv.mu.Unlock()

	srv.wg.Wait()
}

func (srv *Server) isClosing() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.closing
}

func (srv *Server) track(c net.Conn) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.closing {
		return false
	}
	srv.conns[c] = false
	srv.wg.Add(1)
	return true
}

// setReading marks c as reading a request body. Once closing, the deadline set by
// Shutdown is replaced so the started request is still read.
func (srv *Server) setReading(c net.Conn, reading bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.conns[c] = reading
	if reading && srv.closing {
		_ = c.SetReadDeadline(time.Now().Add(shutdownReadGrace))
	}
}

func (srv *Server) untrack(c net.Conn) {
	srv.mu.Lock()
	delete(srv.conns, c)
	srv.mu.Unlock()
	srv.wg.Done()
}

func (srv *Server) serveConn(conn net.Conn) {
	decoder := cbor.NewDecoder(conn)
	encoder := cbor.NewEncoder(conn)
	defer func() {
		conn.Close()
		srv.untrack(conn)
	}()

	for {
		if srv.isClosing() {
			return
		}

		req := &RequestHeader{}
		if err := decoder.Decode(req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) || srv.isClosing() {
				log.Debugf("crpc.Server: connection %s closed: %v", conn.RemoteAddr(), err)
			} else {
				log.Errorf("crpc.Server: error decoding request header from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		srv.setReading(conn, true)

		dot := strings.LastIndex(req.Method, ".")
		if dot < 0 {
			log.Errorf("crpc.Server: service/method request ill-formed: %q from %s", req.Method, conn.RemoteAddr())
			return
		}
		serviceName := req.Method[:dot]
		methodName := req.Method[dot+1:]

		svci, ok := srv.serviceMap.Load(serviceName)
		if !ok {
			log.Errorf("crpc.Server: can't find service %q for method %q from %s", serviceName, req.Method, conn.RemoteAddr())
			return
		}
		svc := svci.(*service)
		mtype := svc.method[methodName]
		if mtype == nil {
			log.Errorf("crpc.Server: can't find method %q for service %q from %s", methodName, serviceName, conn.RemoteAddr())
			return
		}

		argv := reflect.New(mtype.ArgType)
		if mtype.ArgType.Kind() == reflect.Pointer {
			argv = reflect.New(mtype.ArgType.Elem())
		}
		if err := decoder.Decode(argv.Interface()); err != nil {
			log.Errorf("crpc.Server: error decoding argument for %s from %s: %v", req.Method, conn.RemoteAddr(), err)
			return
		}
		srv.setReading(conn, false)
		if mtype.ArgType.Kind() != reflect.Pointer {
			argv = argv.Elem()
		}

		repl := &ResponseHeader{Seq: req.Seq}
		replyv := reflect.New(mtype.ReplyType.Elem())

		var callErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("crpc.Server: panic during RPC call %s from %s: %v", req.Method, conn.RemoteAddr(), r)
					callErr = fmt.Errorf("crpc: internal server error during %s", req.Method)
				}
			}()
			callErr = svc.call(mtype, argv, replyv)
		}()

		if callErr != nil {
			repl.Err = callErr.Error()
		}

		if err := encoder.Encode(repl); err != nil {
			log.Errorf("crpc.Server: error encoding response header for %s to %s: %v", req.Method, conn.RemoteAddr(), err)
			return
		}

		if callErr == nil {
			if err := encoder.Encode(replyv.Interface()); err != nil {
				log.Errorf("crpc.Server: error encoding response body for %s to %s: %v", req.Method, conn.RemoteAddr(), err)
				return
			}
		}
	}
}

func (svc *service) call(mtype *methodType, argv, replyv reflect.Value) error {
	mtype.Lock()
	mtype.numCalls++
	mtype.Unlock()
	returnValues := mtype.method.Func.Call([]reflect.Value{svc.rcvr, argv, replyv})
	if errInter := returnValues[0].Interface(); errInter != nil {
		return errInter.(error)
	}
	return nil
}
