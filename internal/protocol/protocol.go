// Package protocol implements the MessagePack wire format spoken between
// strata-server and strata-client: a Request read from the connection
// triggers exactly one Response written back, both encoded as tagged
// variants since Go has no native sum type to mirror the original design's
// enum.
package protocol

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// RequestKind tags which operation a Request carries.
type RequestKind string

const (
	KindRead   RequestKind = "read"
	KindWrite  RequestKind = "write"
	KindDelete RequestKind = "delete"
)

// Request is encoded on the wire as the 3-element array
// [kind, key, value] — value is ignored on the receiving end for Read and
// Delete, mirroring the original design's Read{key} / Write{key,value} /
// Delete{key} variants without needing Go struct tags per variant.
type Request struct {
	Kind  RequestKind
	Key   string
	Value string
}

var _ msgpack.CustomEncoder = Request{}
var _ msgpack.CustomDecoder = (*Request)(nil)

// EncodeMsgpack implements msgpack.CustomEncoder.
func (r Request) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString(string(r.Kind)); err != nil {
		return err
	}
	if err := enc.EncodeString(r.Key); err != nil {
		return err
	}
	return enc.EncodeString(r.Value)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (r *Request) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 3 {
		return fmt.Errorf("protocol: request array has %d elements, want 3", n)
	}
	kind, err := dec.DecodeString()
	if err != nil {
		return err
	}
	key, err := dec.DecodeString()
	if err != nil {
		return err
	}
	value, err := dec.DecodeString()
	if err != nil {
		return err
	}
	r.Kind = RequestKind(kind)
	r.Key = key
	r.Value = value
	return nil
}

// ResponseKind tags whether a Response carries a result or a failure.
type ResponseKind string

const (
	KindSuccess ResponseKind = "success"
	KindError   ResponseKind = "error"
)

// Response is encoded on the wire as the 4-element array
// [kind, found, value, error] — the original design's Success(Option<String>)
// is split into the Found/Value pair since Go has no Option type; Error
// holds the message for a KindError response and is empty otherwise.
type Response struct {
	Kind  ResponseKind
	Found bool
	Value string
	Error string
}

var _ msgpack.CustomEncoder = Response{}
var _ msgpack.CustomDecoder = (*Response)(nil)

// EncodeMsgpack implements msgpack.CustomEncoder.
func (r Response) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(4); err != nil {
		return err
	}
	if err := enc.EncodeString(string(r.Kind)); err != nil {
		return err
	}
	if err := enc.EncodeBool(r.Found); err != nil {
		return err
	}
	if err := enc.EncodeString(r.Value); err != nil {
		return err
	}
	return enc.EncodeString(r.Error)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (r *Response) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 4 {
		return fmt.Errorf("protocol: response array has %d elements, want 4", n)
	}
	kind, err := dec.DecodeString()
	if err != nil {
		return err
	}
	found, err := dec.DecodeBool()
	if err != nil {
		return err
	}
	value, err := dec.DecodeString()
	if err != nil {
		return err
	}
	errMsg, err := dec.DecodeString()
	if err != nil {
		return err
	}
	r.Kind = ResponseKind(kind)
	r.Found = found
	r.Value = value
	r.Error = errMsg
	return nil
}

// Success builds a successful Response. found distinguishes a present value
// from a confirmed absence (e.g. after a Delete or a missed Read).
func Success(value string, found bool) Response {
	return Response{Kind: KindSuccess, Found: found, Value: value}
}

// Failure builds an error Response carrying err's message.
func Failure(err error) Response {
	return Response{Kind: KindError, Error: err.Error()}
}

// Conn wraps one net.Conn (or any io.ReadWriter) with the MessagePack
// encoder and decoder needed to exchange a stream of Request/Response
// values. A single Conn must be reused across the connection's lifetime:
// the underlying decoder may buffer ahead past a single value's bytes, so
// constructing a fresh decoder per message would drop buffered data
// belonging to the next one.
type Conn struct {
	enc *msgpack.Encoder
	dec *msgpack.Decoder
}

// NewConn builds a Conn over rw.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{enc: msgpack.NewEncoder(rw), dec: msgpack.NewDecoder(rw)}
}

// ReadRequest decodes the next Request sent by a client.
func (c *Conn) ReadRequest() (Request, error) {
	var req Request
	err := c.dec.Decode(&req)
	return req, err
}

// WriteResponse encodes resp as the reply to the most recently read
// Request.
func (c *Conn) WriteResponse(resp Response) error {
	return c.enc.Encode(resp)
}

// WriteRequest encodes req, for use by clients.
func (c *Conn) WriteRequest(req Request) error {
	return c.enc.Encode(req)
}

// ReadResponse decodes the server's reply, for use by clients.
func (c *Conn) ReadResponse() (Response, error) {
	var resp Response
	err := c.dec.Decode(&resp)
	return resp, err
}
