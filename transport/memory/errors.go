package memory

import "github.com/tailored-agentic-units/msghub/transport"

// ErrClosed is returned when posting to a closed port, window or mailbox.
var ErrClosed = transport.ErrClosed
