package connection

import "github.com/fenwicklabs/proxycache/httpmsg"

func stockMessage(statusLine, reason string) *httpmsg.Message {
	return &httpmsg.Message{
		StartLine: [3]string{"HTTP/1.1", statusLine, reason},
		Headers:   []httpmsg.Header{{Key: "Content-Length", Value: "0"}},
	}
}

func stock400() *httpmsg.Message { return stockMessage("400", "Invalid Request") }
func stock502() *httpmsg.Message { return stockMessage("502", "Bad Gateway") }

// stock200Connect is the bodyless "HTTP/1.1 200 OK" reply written to the
// client once the origin TCP connection for a CONNECT request is
// established, after which both sockets are handed to the tunnel.
func stock200Connect() *httpmsg.Message {
	return &httpmsg.Message{StartLine: [3]string{"HTTP/1.1", "200", "OK"}}
}
