// Package protocol implements the WiTransfer discovery announcement.
//
// An announcement is one UDP datagram carrying a UTF-8 JSON object:
//
//	{
//	  "identifier": "WiTransfer",
//	  "device_info": {
//	    "real_name": "Alice",
//	    "user_name": "alice",
//	    "device_name": "alice-laptop",
//	    "platform": "Linux",
//	    "distro": "Ubuntu 24.04"
//	  },
//	  "ip_addr": "192.168.1.10",
//	  "max_threads": 8
//	}
//
// All four top-level keys and all five device_info keys are required.
// Unknown keys are ignored so newer peers can add fields. A datagram longer
// than MaxDatagramSize is never produced.
//
// # Encoding
//
//	env := protocol.NewEnvelope(desc, addr)
//	payload, err := protocol.Encode(env)
//
// Encode fails with an *EncodeError when the envelope cannot be
// represented, for example a missing protocol tag or an invalid address.
//
// # Decoding
//
//	env, err := protocol.Decode(payload)
//	if protocol.IsDecodeError(err) {
//	    // malformed datagram, drop it
//	}
//
// Decode never panics on arbitrary input. It validates structure only.
// Whether an envelope belongs to this protocol is decided by the caller
// with Envelope.IsForeign.
package protocol
