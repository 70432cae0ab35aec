// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns a streaming response body into text fragments.
//
// A Decoder reads the body buffer by buffer and yields fragments lazily.
// Three encodings are supported:
//
//   - raw: every buffer read from the body is one fragment
//   - tagged: newline-delimited records; records starting with "0:" carry a
//     JSON string literal that becomes one fragment, other records are ignored
//   - ndjson: newline-delimited Ollama-style JSON objects whose
//     message.content (chat) or response (generate) field is the fragment
//
// Multi-byte characters and records split across buffer boundaries are
// carried over to the next read. Malformed records are logged and dropped;
// only a failure of the body itself ends the stream with an error.
//
// # Usage
//
//	dec := stream.NewDecoder(resp.Body, stream.ModeTagged, stream.WithLogger(logger))
//	for {
//	    fragment, err := dec.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err // *chaterr.Error with KindStreamRead
//	    }
//	    render(fragment)
//	}
package stream
