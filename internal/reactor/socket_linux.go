//go:build linux

package reactor

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// listenTCP opens a non-blocking listening socket bound to addr
// ("host:port"); TCP_NODELAY is set per accepted socket in acceptOne. It
// uses raw unix syscalls rather than net.Listen so the
// reactor can drive it from its own epoll set instead of handing control to
// the runtime netpoller.
func listenTCP(addr string) (fd int, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("reactor: invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("reactor: invalid port %q: %w", portStr, err)
	}

	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return 0, fmt.Errorf("reactor: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("reactor: setsockopt SO_REUSEADDR: %w", err)
	}

	var ip [4]byte
	if host == "" || host == "0.0.0.0" {
		ip = [4]byte{0, 0, 0, 0}
	} else {
		parsed := net.ParseIP(host)
		if parsed == nil {
			unix.Close(fd)
			return 0, fmt.Errorf("reactor: invalid listen host %q", host)
		}
		v4 := parsed.To4()
		if v4 == nil {
			unix.Close(fd)
			return 0, fmt.Errorf("reactor: only IPv4 listen addresses are supported, got %q", host)
		}
		copy(ip[:], v4)
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("reactor: bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("reactor: listen %s: %w", addr, err)
	}
	return fd, nil
}

// acceptOne performs one non-blocking accept on listenFd. ok is false on
// EAGAIN (no pending connection), which is the expected steady-state result.
func acceptOne(listenFd int) (fd int, ok bool, err error) {
	nfd, _, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK)
	if err == unix.EAGAIN {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if err := unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		unix.Close(nfd)
		return 0, false, fmt.Errorf("reactor: setsockopt TCP_NODELAY: %w", err)
	}
	return nfd, true, nil
}

const listenBacklog = 1024
