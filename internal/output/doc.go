// Package output renders decoded caption snapshots. A Sink receives
// snapshots in cue order; the text, json and moq sinks write to an
// io.Writer, while Hub and MQTTSink fan snapshots out to live
// subscribers.
package output
