package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// readMessage reads one length-framed JSON message. Header lines end with
// \r\n or \n; a trailing header line with no terminator at EOF is
// accepted. EOF before any Content-Length yields io.EOF so the loop can
// terminate cleanly.
func readMessage(r *bufio.Reader) (*Message, error) {
	length := -1
	for {
		line, err := readHeaderLine(r)
		if err != nil {
			if err == io.EOF && length < 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			n, convErr := strconv.Atoi(strings.TrimSpace(v))
			if convErr != nil {
				return nil, fmt.Errorf("invalid Content-Length %q: %w", v, convErr)
			}
			length = n
		}
	}

	if length < 0 {
		return nil, fmt.Errorf("message headers carry no Content-Length")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read %d-byte body: %w", length, err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message body: %w", err)
	}
	return &msg, nil
}

// readHeaderLine reads up to '\n', stripping the terminator and any
// preceding '\r'. A final unterminated line is returned with its content;
// the next call reports io.EOF.
func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSuffix(line, "\r"), nil
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// unmarshalParams decodes request params, treating absent params as
// malformed.
func unmarshalParams(params json.RawMessage, into interface{}) error {
	if params == nil {
		return fmt.Errorf("missing params")
	}
	return json.Unmarshal(params, into)
}

// writeMessage frames and writes one message. The loop is the only writer,
// so no locking is needed.
func (l *Loop) writeMessage(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outgoing message: %w", err)
	}
	l.logger.Debug("write", "raw", string(data))
	if _, err := fmt.Fprintf(l.writer, "Content-Length: %d\r\n\r\n%s", len(data), data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (l *Loop) sendResult(id json.RawMessage, result interface{}) {
	if err := l.writeMessage(&responseMessage{JSONRPC: "2.0", ID: id, Result: result}); err != nil {
		l.logger.Error("failed to send result", "error", err.Error())
	}
}

func (l *Loop) sendError(id json.RawMessage, code int, message string) {
	if err := l.writeMessage(&errorMessage{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ResponseError{Code: code, Message: message},
	}); err != nil {
		l.logger.Error("failed to send error", "error", err.Error())
	}
}

func (l *Loop) sendNotification(method string, params interface{}) {
	if err := l.writeMessage(&notificationMessage{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
		l.logger.Error("failed to send notification", "method", method, "error", err.Error())
	}
}

// sendRequest issues a server-initiated request and registers the reply
// handlers under a typer-req-<counter> id.
func (l *Loop) sendRequest(method string, params interface{}, onResult func(json.RawMessage), onError func(json.RawMessage)) {
	l.requestCounter++
	id := "typer-req-" + strconv.Itoa(l.requestCounter)
	l.awaitingReply[id] = replyHandler{onResult: onResult, onError: onError}

	if err := l.writeMessage(&requestMessage{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		delete(l.awaitingReply, id)
		l.logger.Error("failed to send request", "method", method, "error", err.Error())
	}
}
