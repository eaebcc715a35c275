package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func TestCodec_RoundTripsRequest(t *testing.T) {
	var buf bytes.Buffer
	writer := NewCodec(nil, &buf)
	if err := writer.writeFrame(mustMarshal(t, Request{JSONRPC: "2.0", ID: 1, Method: "initialize"})); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	reader := NewCodec(&buf, nil)
	req, err := reader.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Method != "initialize" {
		t.Fatalf("expected method initialize, got %q", req.Method)
	}
}

func TestCodec_ReadRequestReturnsEOFOnCleanClose(t *testing.T) {
	reader := NewCodec(bytes.NewReader(nil), nil)
	if _, err := reader.ReadRequest(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestCodec_WriteResponseFramesWithContentLength(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec(nil, &buf)
	if err := c.WriteResponse(&Response{ID: 1, Result: map[string]string{"ok": "true"}}); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	reader := NewCodec(&buf, nil)
	body, err := reader.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.JSONRPC != "2.0" {
		t.Fatalf("expected jsonrpc 2.0 to be filled in, got %q", resp.JSONRPC)
	}
}

func TestCodec_WriteNotificationHasNoID(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec(nil, &buf)
	if err := c.WriteNotification("textDocument/publishDiagnostics", map[string]string{"uri": "file:///a"}); err != nil {
		t.Fatalf("WriteNotification: %v", err)
	}
	reader := NewCodec(&buf, nil)
	body, err := reader.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.ID != nil {
		t.Fatalf("expected a notification to carry no ID, got %v", req.ID)
	}
	if req.Method != "textDocument/publishDiagnostics" {
		t.Fatalf("unexpected method %q", req.Method)
	}
}

func TestCodec_MissingContentLengthErrors(t *testing.T) {
	reader := NewCodec(bytes.NewBufferString("\r\n"), nil)
	if _, err := reader.readFrame(); err == nil {
		t.Fatalf("expected an error for a frame missing Content-Length")
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
