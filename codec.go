package chatango

import "strings"

// pingFrame is the bare keep-alive frame: a terminator with no verb.
const pingFrame = "\r\n\x00"

// encodeFrame joins args with ':' and appends the frame terminator, per
// the outbound wire format "<verb>[:<arg>]*\r\n\0".
func encodeFrame(args ...string) string {
	return strings.Join(args, ":") + "\r\n\x00"
}

// decodeFrame splits an inbound text frame into its verb and positional
// arguments. The transport has already stripped the terminator; parsing
// here only needs to split on the first ':' to separate the verb from
// everything else, then split the remainder on ':' for the arguments.
// Handlers that need the unsplit tail (message bodies containing ':')
// rejoin from the documented argument position.
func decodeFrame(raw string) (verb string, args []string) {
	if raw == "" {
		return "", nil
	}
	verb, rest, found := strings.Cut(raw, ":")
	if !found {
		return verb, nil
	}
	return verb, strings.Split(rest, ":")
}
