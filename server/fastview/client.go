package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// The rate at which ele-updates will be sent to the client, so as not to overburden.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// Example code sets this to 10*pingResolution. By definition, it encompasses the number of
	// pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// A client publishes a hub's updates unidirectionally to a single dashboard page
// via websocket. Messages from the page are read only to service control frames.
type client[T any] struct {
	updates     <-chan T
	unsubscribe func()
	ws          *websock
	rootCtx     context.Context
}

// NewClient upgrades the request to a websocket and subscribes it to the hub.
// Hub updates should be idempotent, such that updates dropped for a slow client
// are restored by the next ones.
func NewClient[T any](
	hub *Hub[T],
	w http.ResponseWriter,
	r *http.Request,
) (*client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	updates, unsubscribe := hub.Subscribe()
	return &client[T]{
		updates:     updates,
		unsubscribe: unsubscribe,
		ws:          NewWebSocket(ws),
		rootCtx:     r.Context(),
	}, nil
}

// Sync publishes incoming updates to the websocket until the page disconnects,
// the request context is cancelled, or the hub stops. Updates are published at a
// compiled rate, in the order received.
// Sync returns nil upon client disconnect or an error if an unexpected error occurred.
func (cli *client[T]) Sync() error {
	defer cli.unsubscribe()

	ctx, cancel := context.WithCancel(cli.rootCtx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)

	// Any routine exiting tears down the others.
	run := func(fn func(context.Context) error) {
		group.Go(func() error {
			defer cancel()
			return fn(groupCtx)
		})
	}
	run(cli.readMessages)
	run(cli.pingPong)
	run(cli.publish)
	// Unblocks the reader, which otherwise waits on the next frame.
	group.Go(func() error {
		<-groupCtx.Done()
		_ = cli.ws.Conn().Close()
		return nil
	})

	return group.Wait()
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// Runs the ping-pong for the client liveness check.
// NOTE: This function requires that readPump is running to ensure the pong handler is called.
func (cli *client[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}

			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *client[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if isError(err) {
					err = fmt.Errorf("ping failed: %T %v", err, err)
				}
			}
			return
		})
}

// readMessages monitors for messages from the client.
// Errors returned by websocket Read methods are permanent, hence any error
// must trigger full teardown.
func (cli *client[T]) readMessages(ctx context.Context) error {
	for {
		// FUTURE: this is where it would be easy to implement a bidirectional @client by merely
		// passing received messages to an output chan of messages from the client.
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, _, readErr = ws.ReadMessage()
				return
			})
		if ctx.Err() != nil || isClosure(err) {
			return nil
		}
		if err != nil && !errors.Is(err, ErrSockCongestion) {
			return err
		}
	}
}

// publish writes the updates received since the last pubResolution tick, in order.
// At most subscriberBuffer updates are held; older ones are dropped.
func (cli *client[T]) publish(ctx context.Context) error {
	var pending []T
	ticker := time.NewTicker(pubResolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			// Graceful hub closure
			if !ok {
				return nil
			}
			if pending = append(pending, update); len(pending) > subscriberBuffer {
				pending = pending[1:]
			}
		case <-ticker.C:
			if len(pending) == 0 {
				break
			}
			batch := pending
			pending = nil
			err := cli.ws.Write(
				ctx,
				func(ws *websocket.Conn) (writeErr error) {
					if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
						writeErr = fmt.Errorf("failed to set deadline: %T %w", writeErr, writeErr)
						return
					}

					for _, updates := range batch {
						if writeErr = ws.WriteJSON(updates); writeErr != nil {
							if isError(writeErr) {
								writeErr = fmt.Errorf("publish failed: %T %v", writeErr, writeErr)
							}
							return
						}
					}
					return
				})
			if err != nil {
				return err
			}
		}
	}
}

func isError(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const (
	readDeadline  = time.Second
	writeDeadline = time.Second
)

// websock merely serializes reads and writes to the websocket, whose requirements
// are that there may be only one concurrent read and writer at a time.
type websock struct {
	// These are merely mutexes, but channel semantics are cleaner.
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func NewWebSocket(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Returns the underlying websocket.
// This should only be used non-concurrently for setup, e.g. adding handlers.
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Read serializes read operations on the internal web socket.
func (sock *websock) Read(
	ctx context.Context,
	readFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	case <-time.After(readDeadline):
		return ErrSockCongestion
	}
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
