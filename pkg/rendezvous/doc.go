// Package rendezvous implements the session-establishment contracts: the
// handshake transcript that binds an offer/answer exchange to both device
// certificates and a channel-binding secret, and the short-lived presence
// ticket a device presents for peer authentication. Tickets are signed by
// the account's witness quorum, so no single device can mint one.
package rendezvous
