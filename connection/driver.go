// Package connection implements the per-connection protocol driver: the
// ClientSide/OriginSide state machine that reads a client request,
// consults the shared cache, optionally round-trips to the origin server,
// and writes a response back — or, for CONNECT, hands both sockets to a
// tunnel. Each accepted TCP connection is driven by exactly one goroutine,
// which is this implementation's translation of the reference's
// asynchronous, reactor-driven state machine: a blocking Read/Write/Dial
// call here is precisely one of the reference's "suspension points," and
// the Go scheduler multiplexing goroutines over GOMAXPROCS threads plays
// the role the reference's fixed worker-thread pool played for its shared
// io_service.
package connection

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenwicklabs/proxycache/auditlog"
	"github.com/fenwicklabs/proxycache/cachestore"
	"github.com/fenwicklabs/proxycache/httpmsg"
	"github.com/fenwicklabs/proxycache/proxylog"
	"github.com/fenwicklabs/proxycache/rfc7234"
	"github.com/fenwicklabs/proxycache/tunnel"
)

// outcomeRecorder is the admin API's counter-update hook. Declaring it as
// an interface here (rather than importing the adminapi package directly)
// keeps the connection driver from depending on the HTTP surface that
// merely observes it.
type outcomeRecorder interface {
	RecordOutcome(outcome string)
}

// Deps are the shared resources every connection's goroutine needs; they
// are created once by the server shell and handed to every Serve call.
type Deps struct {
	Cache        *cachestore.Store
	IDs          *IDCounter
	Logger       zerolog.Logger
	Dialer       *net.Dialer
	ConnDeadline time.Duration
	Audit        *auditlog.Sink  // nil disables audit persistence
	Admin        outcomeRecorder // nil disables admin API counters
}

// Serve drives one accepted client connection for as long as it issues
// further requests, closing it when the peer disconnects, a fatal I/O
// error occurs, or the request stream is handed off to a tunnel.
func Serve(conn net.Conn, deps Deps) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	clientAddr := conn.RemoteAddr().String()

	for {
		id := deps.IDs.Next()
		log := proxylog.WithConnID(deps.Logger, id)

		if deps.ConnDeadline > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(deps.ConnDeadline))
		}
		if _, err := reader.Peek(1); err != nil {
			logIOOutcome(log, err)
			return
		}

		msg := &httpmsg.Message{}
		parser := httpmsg.NewParser(msg)
		if err := parser.Parse(reader); err != nil {
			var pe *httpmsg.ParseError
			if errors.As(err, &pe) {
				log.Error().Str("reason", pe.Reason).Msg("ERROR bad request header")
				if writeToClient(conn, stock400(), log) != nil {
					return
				}
				continue
			}
			logIOOutcome(log, err)
			return
		}

		done := handleRequest(conn, id, clientAddr, log, msg, deps)
		if done {
			return
		}
	}
}

// handleRequest processes exactly one request/response cycle and reports
// whether the connection's goroutine should stop (true) — because it was
// handed off to a tunnel or hit a fatal I/O error — or continue waiting
// for the next request on the same connection (false).
func handleRequest(conn net.Conn, id uint64, clientAddr string, log zerolog.Logger, msg *httpmsg.Message, deps Deps) bool {
	started := time.Now()

	protocol := msg.StartLine[2]
	if protocol != "HTTP/1.0" && protocol != "HTTP/1.1" {
		log.Error().Str("reason", "unsupported protocol").Msg("ERROR bad request header")
		writeToClient(conn, stock400(), log)
		return false
	}

	method := msg.StartLine[0]
	target := msg.StartLine[1]
	log.Info().Str("client", clientAddr).Str("line", startLineString(msg)).
		Time("at", started).Msg("request")

	reqInfo := rfc7234.ParseRequestCacheInfo(msg)
	if len(reqInfo.IgnoredDirectives) > 0 {
		log.Trace().Strs("directives", reqInfo.IgnoredDirectives).Msg("ignored request Cache-Control directives")
	}

	var candidate *cachestore.Entry
	if method == "GET" {
		acc := deps.Cache.Open(target)
		storedKey, entry, occupied := acc.Get()
		acc.Close()
		if occupied && storedKey == target {
			candidate = &entry
		} else {
			log.Info().Msg("not in cache")
		}
	}

	if candidate != nil {
		if reqInfo.NoCache || candidate.Info.NoCache {
			log.Info().Msg("in cache, requires validation")
			injectValidators(msg, candidate.Info)
			candidate = nil
		} else if candidate.Info.Expired() {
			expireTime := time.Now().Add(-candidate.Info.CurrentAge() + candidate.Info.FreshnessLifetime)
			log.Info().Time("expired_at", expireTime).Msg("in cache, but expired")
			injectValidators(msg, candidate.Info)
			candidate = nil
		} else {
			log.Info().Msg("in cache, valid")
		}
	} else {
		msg.Delete("If-Modified-Since")
		msg.Delete("If-None-Match")
	}

	if candidate != nil {
		if err := writeToClient(conn, candidate.Message, log); err != nil {
			return true
		}
		submitAudit(deps, id, method, target, candidate.Message.StartLine[1], "hit", started)
		return false
	}

	return forwardToOrigin(conn, id, log, msg, target, started, deps)
}

// injectValidators adds conditional request headers derived from a cache
// entry that is being dropped (forcing revalidation), so the origin — not
// the client's own, possibly absent, conditional headers — decides whether
// a 304 is appropriate.
func injectValidators(msg *httpmsg.Message, info rfc7234.ResponseCacheInfo) {
	if info.HasLastModified {
		msg.Set("If-Modified-Since", rfc7234.FormatHTTPDate(info.LastModified))
	}
	if info.ETag != "" {
		msg.Set("If-None-Match", info.ETag)
	}
}

// forwardToOrigin implements the OriginSide state machine: resolve/connect
// to the target named by the (possibly rewritten) request, then either
// tunnel (CONNECT) or round-trip a request/response and apply the store
// policy to the response.
func forwardToOrigin(conn net.Conn, id uint64, log zerolog.Logger, msg *httpmsg.Message, cacheKey string, started time.Time, deps Deps) bool {
	method := msg.StartLine[0]
	url := httpmsg.ParseURL(msg.StartLine[1])
	msg.StartLine[1] = url.Path // rewrite to origin-form before forwarding

	dialer := deps.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	ctx := context.Background()
	if deps.ConnDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.ConnDeadline)
		defer cancel()
	}

	originConn, err := dialer.DialContext(ctx, "tcp", url.HostPort())
	if err != nil {
		log.Error().Err(err).Msg("ERROR could not connect to origin")
		writeToClient(conn, stock502(), log)
		submitAudit(deps, id, method, cacheKey, "", "bypass", started)
		return false
	}
	defer originConn.Close()

	if deps.ConnDeadline > 0 {
		_ = originConn.SetDeadline(time.Now().Add(deps.ConnDeadline))
	}

	if method == "CONNECT" {
		if err := writeToClient(conn, stock200Connect(), log); err != nil {
			return true
		}
		submitAudit(deps, id, method, cacheKey, "200", "bypass", started)
		tunnel.Run(conn, originConn, log)
		return true
	}

	requestTime := time.Now()
	if err := writeToOrigin(originConn, msg, url.Host, log); err != nil {
		log.Error().Err(err).Msg("ERROR writing request to origin")
		writeToClient(conn, stock502(), log)
		submitAudit(deps, id, method, cacheKey, "", "bypass", started)
		return false
	}

	originMsg := &httpmsg.Message{}
	originParser := httpmsg.NewParser(originMsg)
	originParser.SetResponse(true)
	originParser.SetTolerateTruncatedBody(true)
	originReader := bufio.NewReader(originConn)

	if err := originParser.Parse(originReader); err != nil {
		var pe *httpmsg.ParseError
		switch {
		case errors.As(err, &pe):
			log.Error().Str("reason", pe.Reason).Msg("ERROR bad response header")
			writeToClient(conn, stock502(), log)
			submitAudit(deps, id, method, cacheKey, "", "bypass", started)
			return false
		case errors.Is(err, io.EOF):
			// The reference leaves the client connection waiting forever in
			// this case (no 502 is ever sent); this implementation instead
			// closes the connection so a resource is not abandoned — see
			// DESIGN.md for this resolved ambiguity.
			log.Info().Msg("NOTE connection closed")
			return true
		default:
			log.Error().Err(err).Msg("ERROR reading response from origin")
			writeToClient(conn, stock502(), log)
			submitAudit(deps, id, method, cacheKey, "", "bypass", started)
			return false
		}
	}

	respProtocol := originMsg.StartLine[0]
	if respProtocol != "HTTP/1.0" && respProtocol != "HTTP/1.1" {
		log.Error().Str("reason", "unsupported protocol").Msg("ERROR bad response header")
		writeToClient(conn, stock502(), log)
		submitAudit(deps, id, method, cacheKey, "", "bypass", started)
		return false
	}
	responseTime := time.Now()

	log.Info().Str("from", url.Host).Str("line", startLineString(originMsg)).Msg("received response")
	if err := writeToClient(conn, originMsg, log); err != nil {
		return true
	}

	status := originMsg.StartLine[1]
	ci, ok := rfc7234.ParseResponseCacheInfo(originMsg, requestTime, responseTime)
	outcome := applyStorePolicy(deps.Cache, cacheKey, method, status, originMsg, ci, ok, log)

	submitAudit(deps, id, method, cacheKey, status, outcome, started)
	return false
}

// applyStorePolicy implements the cacheability test and, when it passes,
// the RFC 7234 store policy: a 200 overwrites the slot outright; a 304
// only updates an existing entry's headers/metadata in place, and only
// when the existing slot's key matches this request's URL.
func applyStorePolicy(store *cachestore.Store, key, method, status string, msg *httpmsg.Message, ci rfc7234.ResponseCacheInfo, ok bool, log zerolog.Logger) string {
	cacheable, reason := rfc7234.Cacheable(method, status, len(msg.Body), ci, ok)
	if !cacheable {
		log.Info().Msg(reason)
		return "not-cacheable"
	}

	acc := store.Open(key)
	defer acc.Close()
	storedKey, existing, occupied := acc.Get()

	switch status {
	case "200":
		acc.Set(cachestore.Entry{URL: key, Message: msg.Clone(), Info: ci})
	default: // "304"
		if !occupied || storedKey != key {
			log.Info().Msg("not cachable because the response is 304 and previous cache does not exist")
			return "not-cacheable"
		}
		existing.Message.Headers = msg.Clone().Headers
		existing.Info = ci
		acc.Set(existing)
	}

	if ci.NoCache {
		log.Info().Msg("cached, but requires re-validation")
	} else {
		log.Info().Time("expires_at", responseExpiry(ci)).Msg("cached")
	}
	return "stored"
}

func responseExpiry(ci rfc7234.ResponseCacheInfo) time.Time {
	return ci.ResponseTime.Add(ci.FreshnessLifetime - ci.CorrectedInitialAge)
}

func startLineString(msg *httpmsg.Message) string {
	return strings.Join(msg.StartLine[:], " ")
}

func writeToClient(conn net.Conn, msg *httpmsg.Message, log zerolog.Logger) error {
	log.Info().Str("line", startLineString(msg)).Msg("Responding")
	_, err := conn.Write(msg.Bytes())
	if err != nil {
		log.Error().Err(err).Msg("ERROR writing to client")
	}
	return err
}

func writeToOrigin(conn net.Conn, msg *httpmsg.Message, host string, log zerolog.Logger) error {
	log.Info().Str("line", startLineString(msg)).Str("host", host).Msg("Requesting")
	_, err := conn.Write(msg.Bytes())
	return err
}

func logIOOutcome(log zerolog.Logger, err error) {
	if errors.Is(err, io.EOF) {
		log.Info().Msg("NOTE connection closed")
		return
	}
	log.Error().Err(err).Msg("ERROR")
}

func submitAudit(deps Deps, id uint64, method, url, status, outcome string, started time.Time) {
	if deps.Admin != nil {
		deps.Admin.RecordOutcome(outcome)
	}
	if deps.Audit == nil {
		return
	}
	deps.Audit.Submit(auditlog.Record{
		RequestID: id,
		ConnID:    id,
		Method:    method,
		URL:       url,
		Status:    status,
		Outcome:   outcome,
		StartedAt: started,
		ElapsedMS: time.Since(started).Milliseconds(),
	})
}
