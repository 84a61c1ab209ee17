package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestConn_RequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf)

	want := Request{Kind: KindWrite, Key: "k", Value: "v"}
	if err := c.WriteRequest(want); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	got, err := c.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got != want {
		t.Fatalf("ReadRequest = %+v, want %+v", got, want)
	}
}

func TestConn_ResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf)

	want := Success("v1", true)
	if err := c.WriteResponse(want); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	got, err := c.ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if got != want {
		t.Fatalf("ReadResponse = %+v, want %+v", got, want)
	}
}

func TestConn_MultipleMessagesDoNotCorruptEachOther(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf)

	reqs := []Request{
		{Kind: KindRead, Key: "a"},
		{Kind: KindWrite, Key: "b", Value: "2"},
		{Kind: KindDelete, Key: "c"},
	}
	for _, r := range reqs {
		if err := c.WriteRequest(r); err != nil {
			t.Fatalf("WriteRequest(%+v): %v", r, err)
		}
	}
	for _, want := range reqs {
		got, err := c.ReadRequest()
		if err != nil {
			t.Fatalf("ReadRequest: %v", err)
		}
		if got != want {
			t.Fatalf("ReadRequest = %+v, want %+v", got, want)
		}
	}
}

func TestFailure_CarriesErrorMessage(t *testing.T) {
	resp := Failure(errors.New("boom"))
	if resp.Kind != KindError {
		t.Fatalf("Kind = %v, want KindError", resp.Kind)
	}
	if resp.Error != "boom" {
		t.Fatalf("Error = %q, want boom", resp.Error)
	}
}

func TestRequest_DecodeRejectsWrongArrayLength(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf)
	if err := c.enc.EncodeArrayLen(2); err != nil {
		t.Fatalf("EncodeArrayLen: %v", err)
	}
	if err := c.enc.EncodeString("read"); err != nil {
		t.Fatalf("EncodeString: %v", err)
	}
	if err := c.enc.EncodeString("k"); err != nil {
		t.Fatalf("EncodeString: %v", err)
	}
	if _, err := c.ReadRequest(); err == nil {
		t.Fatal("ReadRequest succeeded on a malformed 2-element array, want error")
	}
}
