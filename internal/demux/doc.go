// Package demux turns an MPEG-TS video stream into CEA-608 cues. It walks
// the H.264 or H.265 access units, hands SEI NAL units to ccx for A/53
// caption extraction, and keeps the byte pairs of one caption field.
package demux
