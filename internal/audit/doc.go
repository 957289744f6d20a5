// Package audit delivers token lifecycle events to a pluggable [Sink] through
// an asynchronous [Dispatcher].
//
// Sinks: [NoOpSink], [ChannelSink], [JSONWriterSink] and [ZapSink]. The
// dispatcher either drops (counting drops) or blocks when its buffer is full.
//
// This package decides nothing about which events to emit; the Engine does.
// It must not import the root package or any sibling internal package.
package audit
