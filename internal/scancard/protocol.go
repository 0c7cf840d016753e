// Package scancard implements the JSON request/response protocol spoken by the
// laser-marking controller.
package scancard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// Command names understood by the scancard.
const (
	CmdOpenFile                 = "open_file"
	CmdCloseFile                = "close_file"
	CmdSaveFile                 = "save_file"
	CmdStartMark                = "start_mark"
	CmdStopMark                 = "stop_mark"
	CmdStartPreview             = "start_preview"
	CmdStopPreview              = "stop_preview"
	CmdGetWorkingStatus         = "get_working_status"
	CmdGetMarkParametersByLayer = "get_markParameters_by_layer"
	CmdSetMarkParametersByLayer = "set_markParameters_by_layer"
	CmdGetMarkParametersByIndex = "get_markParameters_by_index"
	CmdSetMarkParametersByIndex = "set_markParameters_by_index"
	CmdDownloadParameters       = "download_Parameters"
	CmdGetEntityFillProperty    = "get_entity_fill_property_by_index"
	CmdSetEntityFillProperty    = "set_entity_fill_property_by_index"
	CmdGetEntityCount           = "get_entity_count"
	CmdTranslateEntity          = "translate_entity"
	CmdRotateEntity             = "rotate_entity"
	CmdTranslateEntityByIndex   = "translate_entity_by_index"
	CmdRotateEntityByIndex      = "rotate_entity_by_index"
	CmdTransByModel             = "TransByModel"
	CmdGetNameByIndex           = "get_name_by_index"
	CmdSetNameByIndex           = "set_name_by_index"
	CmdGetContentByIndex        = "get_content_by_index"
	CmdSetContentByIndex        = "set_content_by_index"
	CmdGetPosSizeByIndex        = "get_pos_size_by_index"
	CmdSetPosSizeByIndex        = "set_pos_size_by_index"
	CmdGetContentByName         = "get_content_by_name"
	CmdSetContentByName         = "set_content_by_name"
	CmdDeleteByIndex            = "delete_by_index"
	CmdCopyByIndex              = "copy_by_index"
	CmdMarkByIndex              = "mark_by_index"
	CmdReadInput                = "read_input"
	CmdWriteOutput              = "write_output"
	CmdClearError               = "clear_error"
	CmdGetError                 = "get_error"
	CmdEnableVision             = "enable_vision"
	CmdVisionTranslate          = "vision_translate"
	CmdVisionRotate             = "vision_rotate"
)

// RetSuccess is the ret value reported by state-changing commands on success.
const RetSuccess = 1

// Command is a single request sent to the scancard.
type Command struct {
	SessionID int            `json:"sid"`
	Name      string         `json:"cmd"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewCommand creates a command for session 0.
func NewCommand(name string, data map[string]any) Command {
	return Command{Name: name, Data: data}
}

// Encode serializes the command. Non-ASCII characters are written as \u
// escapes so the payload is plain ASCII on the wire.
func (c Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal command %s: %w", c.Name, err)
	}
	return escapeNonASCII(data), nil
}

// Response is the parsed reply to a Command.
type Response struct {
	Ret  int            `json:"ret"`
	Data map[string]any `json:"data,omitempty"`
}

// OK reports whether the response carries the success sentinel.
func (r *Response) OK() bool {
	return r != nil && r.Ret == RetSuccess
}

// Int returns an integer field from Data.
func (r *Response) Int(key string) (int, bool) {
	if r == nil {
		return 0, false
	}
	switch v := r.Data[key].(type) {
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// DecodeResponse decodes raw device bytes into a Response. The bytes are
// decoded as GB18030 and only the first balanced JSON object is parsed;
// anything after it is ignored.
func DecodeResponse(raw []byte) (*Response, error) {
	text := decodeText(raw)

	obj, err := firstObject(text)
	if err != nil {
		return nil, &DecodeError{Raw: text, Err: err}
	}

	var parsed struct {
		Ret  *int           `json:"ret"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, &DecodeError{Raw: text, Err: err}
	}
	if parsed.Ret == nil {
		return nil, &DecodeError{Raw: text, Err: ErrMissingRet}
	}

	return &Response{Ret: *parsed.Ret, Data: parsed.Data}, nil
}

// decodeText converts device bytes to UTF-8, substituting U+FFFD for
// sequences that are not valid GB18030.
func decodeText(raw []byte) string {
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	}
	return string(out)
}

// firstObject returns the first balanced {...} in s. Braces inside JSON
// strings do not count towards nesting.
func firstObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoObject
}

func escapeNonASCII(data []byte) []byte {
	if !bytes.ContainsFunc(data, func(r rune) bool { return r >= utf8.RuneSelf }) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 16)
	for _, r := range string(data) {
		switch {
		case r < utf8.RuneSelf:
			buf.WriteRune(r)
		case r > 0xFFFF:
			r -= 0x10000
			fmt.Fprintf(&buf, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		default:
			fmt.Fprintf(&buf, `\u%04x`, r)
		}
	}
	return buf.Bytes()
}
