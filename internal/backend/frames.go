// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"strings"

	"github.com/jeranaias/streamchat/internal/stream"
)

// ndjsonFrame mirrors the Ollama chat stream record.
type ndjsonFrame struct {
	Model   string `json:"model,omitempty"`
	Message *struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message,omitempty"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
}

// EncodeFrame encodes one text fragment in the given frame mode.
func EncodeFrame(mode stream.Mode, text string) []byte {
	switch mode {
	case stream.ModeTagged:
		quoted, _ := json.Marshal(text)
		frame := make([]byte, 0, len(stream.TextFramePrefix)+len(quoted)+1)
		frame = append(frame, stream.TextFramePrefix...)
		frame = append(frame, quoted...)
		return append(frame, '\n')
	case stream.ModeNDJSON:
		rec := ndjsonFrame{Message: &struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{Role: RoleAssistant, Content: text}}
		line, _ := json.Marshal(rec)
		return append(line, '\n')
	default:
		return []byte(text)
	}
}

// EncodeFinish returns the trailing record a mode sends after the last
// fragment, or nil. Tagged streams end with a "d:" finish frame, which
// decoders ignore; ndjson ends with a done record.
func EncodeFinish(mode stream.Mode) []byte {
	switch mode {
	case stream.ModeTagged:
		return []byte(`d:{"finishReason":"stop"}` + "\n")
	case stream.ModeNDJSON:
		line, _ := json.Marshal(ndjsonFrame{Done: true, DoneReason: "stop"})
		return append(line, '\n')
	default:
		return nil
	}
}

// EncodeReply splits reply on single spaces and encodes each word, with a
// trailing space, as one chunk, followed by the mode's finish record.
func EncodeReply(reply string, mode stream.Mode) [][]byte {
	words := strings.Split(reply, " ")
	out := make([][]byte, 0, len(words)+1)
	for _, w := range words {
		out = append(out, EncodeFrame(mode, w+" "))
	}
	if finish := EncodeFinish(mode); finish != nil {
		out = append(out, finish)
	}
	return out
}
