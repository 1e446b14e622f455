// Package tunnel implements the opaque bidirectional byte relay
// established after a successful CONNECT: once the origin TCP connection is
// up and the client has been told "200 OK", neither side is parsed again —
// bytes flow verbatim in both directions until either end closes.
package tunnel

import (
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Run relays bytes between client and origin until either direction
// errors, then closes both sockets exactly once. It blocks until both
// relay directions have finished, so callers should invoke it on its own
// goroutine (or, as the connection driver does, as the last thing a
// per-connection goroutine does before returning).
func Run(client, origin net.Conn, log zerolog.Logger) {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			client.Close()
			origin.Close()
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go relay(&wg, client, origin, closeBoth)
	go relay(&wg, origin, client, closeBoth)
	wg.Wait()

	log.Info().Msg("Tunnel closed")
}

// relay continuously reads from src and writes whatever was read to dst,
// until a read or write fails, at which point it closes both sockets
// (idempotently) and returns.
func relay(wg *sync.WaitGroup, dst, src net.Conn, closeBoth func()) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				closeBoth()
				return
			}
		}
		if rerr != nil {
			closeBoth()
			return
		}
	}
}
