// Package cea608 decodes CEA-608 (line 21) closed-caption byte pairs into
// positioned 15x32 text grids.
//
// The central type is [Decoder], which consumes [Cue] values in order,
// validates parity, suppresses redundant control codes and routes each
// byte pair to one of two [Channel] state machines. Each channel owns a
// double-buffered [Memory]; after every cue the decoder renders the
// displayed grid of the last active channel as a [Snapshot].
//
// Recoverable stream anomalies (parity failures, unknown control codes,
// invalid preamble address codes, unsupported features) never stop
// decoding. They are delivered as [Diagnostic] values to a
// [DiagnosticHandler]; a handler may return an error to abort. Only a
// gap in the character tables ([ErrMappingGap]) fails decoding on its own.
//
// Styling (color, underline, italics, flash) is not rendered, and roll-up
// scrolling, backspace, delete-to-end-of-row and text mode are reported
// as [ErrUnsupportedFeature].
package cea608
