package remote

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

func TestPayloadRoundTrip(t *testing.T) {
	ds := &schema.Dataset{Apiaries: []schema.Apiary{{ID: "A1", Name: "Home"}}}
	data, err := EncodePayload(ds, tombstone.New("H9"), "7")
	if err != nil {
		t.Fatal(err)
	}

	snap, err := DecodePayload(data)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != "7" {
		t.Errorf("Version = %q, want 7", snap.Version)
	}
	if !snap.Dataset.Contains("A1") {
		t.Error("decoded dataset lost apiary A1")
	}
	if !snap.Tombstones.Has("H9") || snap.Tombstones.Len() != 1 {
		t.Errorf("Tombstones = %v", snap.Tombstones.IDs())
	}
}

func TestEncodePayload_NilInputs(t *testing.T) {
	data, err := EncodePayload(nil, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	snap, err := DecodePayload(data)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Dataset == nil || snap.Tombstones == nil {
		t.Fatalf("DecodePayload() = %+v, want non-nil dataset and tombstones", snap)
	}
}

func TestDecodePayload_Malformed(t *testing.T) {
	_, err := DecodePayload([]byte("not json"))
	if !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("DecodePayload() error = %v, want ErrMalformedSnapshot", err)
	}

	snap, err := DecodePayload([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Dataset == nil || snap.Tombstones == nil {
		t.Error("empty payload should decode to an empty snapshot")
	}
}

func TestTreatAsEmpty(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrNotFound, true},
		{fmt.Errorf("pull personal: %w", ErrMalformedSnapshot), true},
		{ErrUnreachable, false},
		{ErrRejected, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := TreatAsEmpty(tt.err); got != tt.want {
			t.Errorf("TreatAsEmpty(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
