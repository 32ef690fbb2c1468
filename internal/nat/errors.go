package nat

import "errors"

// ErrPortExhausted is returned by Insert when no external port remains in
// [minPort, maxPort] to allocate for a new mapping. The recovery policy is
// reject-the-new-flow: the caller drops the packet that triggered the
// insert, without any reply to the sender, rather than reusing or evicting
// an existing mapping.
var ErrPortExhausted = errors.New("nat: external port range exhausted")
