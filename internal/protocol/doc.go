// Package protocol translates between the purifier's raw shadow fields and
// the canonical device status model.
//
// This package manages:
//   - Normalizing reported shadow state across three wire generations
//   - Building desired-state patches from canonical commands
//   - Merging partial status updates into a retained per-device status
//
// # Wire Generations
//
// The same device family has shipped three incompatible encodings for the
// same attributes:
//
//   - Generation 3 (current): numeric field identifiers ("D03102",
//     "D0310C", ...), integer-typed values, deci-degree temperature.
//   - Generation 2: short mnemonic keys ("pwr", "om", "pm25", ...),
//     integer-typed values, whole-degree temperature.
//   - Generation 1 (legacy): mnemonic keys with string-typed values
//     ("pwr":"1", "om":"s").
//
// NormalizeReported probes candidate keys newest-generation first and takes
// the first one present. BuildDesired emits generation-3 identifiers only;
// the cloud translates for older firmware.
//
// # Usage
//
//	status := protocol.NormalizeReported(doc.State.Reported)
//	merged := protocol.Merge(previous, status)
//	patch := protocol.BuildDesired(protocol.Command{Power: protocol.Bool(true)})
package protocol
