// Package hostcall defines the message block shared between an enclave
// and its untrusted host, and the request numbers serviced without a
// real kernel syscall.
//
// # Protocol
//
// The block carries exactly one in-flight request/reply pair. Ownership
// alternates between the two sides:
//
//   - guest writes Req and publishes it with CommitRequest, then forces
//     an exit
//   - host observes the request with ObserveRequest, services it, writes
//     the reply and publishes it with CommitReply, then resumes the guest
//   - guest observes the reply with ObserveReply
//
// Commit is a release operation and Observe is an acquire operation on
// the block sequence word. The pairing is what keeps the protocol sound
// under compiler and CPU reordering: no reply byte may be observed
// before the host published it, and no request byte may leave the guest
// after control does. There is no queuing and no sequence-number
// handshake beyond this single word.
package hostcall
