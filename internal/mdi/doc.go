// Package mdi implements the driver/engine command channel: the command
// vocabulary with its payload shapes, typed payloads, the length-prefixed
// frame codec shared by both peers, and the listener/dialer that establish
// one ordered connection per engine.
package mdi
