// Package srt receives live MPEG-TS over SRT (Secure Reliable Transport),
// either as a listener accepting publishers (Server) or as a caller
// pulling from a remote listener (Caller). Both feed sessions into an
// ingest.Registry.
package srt
