// Package moq implements MoQ Transport (draft-ietf-moq-transport-15)
// subgroup stream framing for caption tracks. Each rendered caption is one
// object carrying a LOC capture timestamp extension.
//
// This package only frames bytes onto an io.Writer and parses them back;
// sessions and QUIC transport are out of scope.
package moq
