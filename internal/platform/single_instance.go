package platform

import (
	"bufio"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// ErrAlreadyRunning indicates another instance already holds the lock.
var ErrAlreadyRunning = errors.New("instance already running")

const showRequest = "show"

// InstanceGuard holds the single-instance lock. A second launch connects to
// it and asks the running instance to come forward instead of starting a
// competing lockdown.
type InstanceGuard struct {
	listener net.Listener
	address  string
	logger   *slog.Logger

	mu     sync.Mutex
	onShow func()
	done   chan struct{}
}

// AcquireSingleInstance binds a localhost port derived from appName. If the
// port is taken it signals the holder and returns ErrAlreadyRunning.
func AcquireSingleInstance(appName string, logger *slog.Logger) (*InstanceGuard, error) {
	if logger == nil {
		logger = slog.Default()
	}
	address := fmt.Sprintf("127.0.0.1:%d", portFromName(appName))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		if signalErr := signalRunning(address); signalErr != nil {
			logger.Warn("could not reach running instance", "address", address, "error", signalErr)
		}
		return nil, fmt.Errorf("%s on %s: %w", appName, address, ErrAlreadyRunning)
	}
	guard := &InstanceGuard{listener: listener, address: address, logger: logger, done: make(chan struct{})}
	go guard.serve()
	return guard, nil
}

// OnShow registers the handler run when another launch is attempted.
func (guard *InstanceGuard) OnShow(handler func()) {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	guard.onShow = handler
}

// Release frees the single instance lock.
func (guard *InstanceGuard) Release() error {
	if guard == nil || guard.listener == nil {
		return nil
	}
	err := guard.listener.Close()
	<-guard.done
	return err
}

// Address returns the bound address.
func (guard *InstanceGuard) Address() string {
	if guard == nil {
		return ""
	}
	return guard.address
}

func (guard *InstanceGuard) serve() {
	defer close(guard.done)
	for {
		conn, err := guard.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				guard.logger.Warn("single instance listener stopped", "error", err)
			}
			return
		}
		guard.handle(conn)
	}
}

func (guard *InstanceGuard) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil || strings.TrimSpace(line) != showRequest {
		return
	}
	guard.mu.Lock()
	handler := guard.onShow
	guard.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func signalRunning(address string) error {
	conn, err := net.DialTimeout("tcp", address, time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err = conn.Write([]byte(showRequest + "\n"))
	return err
}

func portFromName(appName string) int {
	const (
		minPort = 20000
		maxPort = 39999
	)
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(appName))
	rangeSize := maxPort - minPort + 1
	return minPort + int(hash.Sum32()%uint32(rangeSize))
}
