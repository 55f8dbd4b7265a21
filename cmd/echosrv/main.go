// Command echosrv is a govent sample: an echo server driven entirely
// by a single Dispatcher, accepting connections on a Unix domain
// socket and round-tripping whatever each client sends, with a
// per-connection receive timeout. A handful of in-process clients
// exercise it concurrently so a single run demonstrates the readiness
// and timeout interplay end to end.
//
// Ported in shape from a server/client echo test pair; the original
// forks N client processes talking over an abstract AF_UNIX socket,
// redone here as goroutines dialing a temp-file Unix socket, since Go
// has no idiomatic fork() and in-process goroutines are the natural
// analogue for "many concurrent peers" here.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	govent "github.com/mwilck/govent"
)

const (
	recvTimeoutSecs = 2
	bufSize         = 256
)

type echoConn struct {
	dsp  *govent.Dispatcher
	fd   int
	name string
}

func newEchoConn(dsp *govent.Dispatcher, fd int, name string) *echoConn {
	return &echoConn{dsp: dsp, fd: fd, name: name}
}

func (c *echoConn) onReadable(evt *govent.Event, events govent.IOEvents) govent.Verdict {
	if evt.Reason == govent.ReasonTimeout {
		fmt.Fprintf(os.Stderr, "%s: receive timeout, closing\n", c.name)
		return govent.Cleanup
	}
	if events&govent.EventHangup != 0 {
		fmt.Fprintf(os.Stderr, "%s: peer hung up\n", c.name)
		return govent.Cleanup
	}

	buf := make([]byte, bufSize)
	n, err := unix.Read(c.fd, buf)
	if err != nil || n <= 0 {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: read: %s\n", c.name, err)
		}
		return govent.Cleanup
	}

	if _, err := unix.Write(c.fd, buf[:n]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: write: %s\n", c.name, err)
		return govent.Cleanup
	}

	if err := c.dsp.ModTimeout(evt, govent.Timespec{Sec: recvTimeoutSecs}); err != nil {
		fmt.Fprintf(os.Stderr, "%s: rearm timeout: %s\n", c.name, err)
	}
	return govent.Continue
}

func runServer(dsp *govent.Dispatcher, sockPath string, nClients int, done chan<- int) {
	l, err := net.Listen("unix", sockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen: %s\n", err)
		os.Exit(1)
	}
	defer l.Close()

	unixListener := l.(*net.UnixListener)
	sconn, err := unixListener.SyscallConn()
	if err != nil {
		fmt.Fprintf(os.Stderr, "SyscallConn: %s\n", err)
		os.Exit(1)
	}

	var listenFD int
	sconn.Control(func(fd uintptr) { listenFD = int(fd) })
	unix.SetNonblock(listenFD, true)

	served := 0
	var acceptEvt *govent.Event
	acceptEvt = govent.NewOnStack(func(evt *govent.Event, events govent.IOEvents) govent.Verdict {
		connFD, _, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return govent.Continue
			}
			fmt.Fprintf(os.Stderr, "accept: %s\n", err)
			return govent.Continue
		}

		served++
		name := fmt.Sprintf("conn#%d", served)
		ec := newEchoConn(dsp, connFD, name)
		conn := govent.NewOnStack(ec.onReadable, connFD, govent.EventRead)
		conn.Cleanup = func(evt *govent.Event) {
			unix.Close(connFD)
			served--
			if served == 0 && acceptEvt != nil {
				dsp.Remove(acceptEvt)
				unix.Close(listenFD)
				done <- nClients
			}
		}
		if err := dsp.Add(conn); err != nil {
			fmt.Fprintf(os.Stderr, "add conn: %s\n", err)
			unix.Close(connFD)
			return govent.Continue
		}
		if err := dsp.ModTimeout(conn, govent.Timespec{Sec: recvTimeoutSecs}); err != nil {
			fmt.Fprintf(os.Stderr, "arm timeout: %s\n", err)
		}
		return govent.Continue
	}, listenFD, govent.EventRead)

	if err := dsp.Add(acceptEvt); err != nil {
		fmt.Fprintf(os.Stderr, "add acceptor: %s\n", err)
		os.Exit(1)
	}

	var mask unix.Sigset_t
	govent.EmptySigset(&mask)
	for {
		if _, err := dsp.Wait(&mask); err != nil {
			if de, ok := err.(*govent.DispatchError); ok && de.Interrupted() {
				continue
			}
			fmt.Fprintf(os.Stderr, "wait: %s\n", err)
			return
		}
	}
}

func runClient(sockPath string, id int, rounds int, wg *sync.WaitGroup) {
	defer wg.Done()
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client %d: dial: %s\n", id, err)
		return
	}
	defer conn.Close()

	for i := 0; i < rounds; i++ {
		msg := fmt.Sprintf("hello from client %d, round %d", id, i)
		if _, err := conn.Write([]byte(msg)); err != nil {
			fmt.Fprintf(os.Stderr, "client %d: write: %s\n", id, err)
			return
		}
		buf := make([]byte, bufSize)
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "client %d: read: %s\n", id, err)
			return
		}
		if string(buf[:n]) != msg {
			fmt.Fprintf(os.Stderr, "client %d: mismatched echo\n", id)
		}
		time.Sleep(time.Duration(100+rand.Intn(400)) * time.Millisecond)
	}
}

func main() {
	nClients := flag.Int("clients", 4, "number of concurrent echo clients")
	rounds := flag.Int("rounds", 5, "request/response rounds per client")
	flag.Parse()

	dsp, err := govent.NewDispatcher(unix.CLOCK_MONOTONIC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "new dispatcher: %s\n", err)
		os.Exit(1)
	}
	defer dsp.Cleanup()

	sockPath := filepath.Join(os.TempDir(), fmt.Sprintf("govent-echo-%d.sock", os.Getpid()))
	os.Remove(sockPath)
	defer os.Remove(sockPath)

	done := make(chan int, 1)
	go runServer(dsp, sockPath, *nClients, done)

	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < *nClients; i++ {
		wg.Add(1)
		go runClient(sockPath, i, *rounds, &wg)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(recvTimeoutSecs * 2 * time.Second):
	}
}
