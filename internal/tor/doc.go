// Package tor provides the optional proxied transports for sbdl.
//
// Client wraps an x/net SOCKS5 dialer and hands out an http.Transport that
// the fetch client uses instead of a direct connection. It serves both the
// --proxy flag (any SOCKS5 server) and the --tor flag, where EmbeddedTor
// launches a private Tor daemon through tornago and exposes its SOCKS port.
//
// CheckConnection performs a raw SOCKS5 handshake against the proxy before
// a run starts, so a wrong address fails fast with a clear error instead of
// surfacing as a timeout on the first page.
package tor
