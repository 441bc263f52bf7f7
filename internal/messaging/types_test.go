package messaging

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestBlockCandidateMessage_Proto(t *testing.T) {
	foundAt := time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC)
	in := &BlockCandidateMessage{
		CandidateID: "pool-1:2500001",
		BlockBlob:   "0400850d6b0d",
		Height:      2500001,
		Source:      "pool-1",
		FoundAt:     foundAt,
	}

	s, err := in.ToProto()
	if err != nil {
		t.Fatalf("ToProto() error = %v", err)
	}
	if got := s.Fields["found_at"].GetStringValue(); got != "2026-03-14T15:09:26.535Z" {
		t.Errorf("found_at = %q", got)
	}

	// Through the wire format, as Kafka carries it
	data, err := proto.Marshal(s)
	if err != nil {
		t.Fatalf("proto.Marshal() error = %v", err)
	}
	var decoded structpb.Struct
	if err := proto.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("proto.Unmarshal() error = %v", err)
	}

	out, err := BlockCandidateFromProto(&decoded)
	if err != nil {
		t.Fatalf("BlockCandidateFromProto() error = %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("candidate mismatch (-want +got):\n%s", diff)
	}
}

func TestBlockCandidateFromProto_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"missing blob", map[string]any{"candidate_id": "x", "height": 5}},
		{"bad timestamp", map[string]any{"block_blob": "00", "found_at": "yesterday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := structpb.NewStruct(tt.fields)
			if err != nil {
				t.Fatalf("NewStruct() error = %v", err)
			}
			if _, err := BlockCandidateFromProto(s); err == nil {
				t.Error("BlockCandidateFromProto() should fail")
			}
		})
	}
}

func TestBlockCandidateFromProto_ZeroTime(t *testing.T) {
	in := &BlockCandidateMessage{BlockBlob: "00"}
	s, err := in.ToProto()
	if err != nil {
		t.Fatalf("ToProto() error = %v", err)
	}
	out, err := BlockCandidateFromProto(s)
	if err != nil {
		t.Fatalf("BlockCandidateFromProto() error = %v", err)
	}
	if !out.FoundAt.IsZero() {
		t.Errorf("FoundAt = %v, want zero", out.FoundAt)
	}
}

func TestBlockSubmissionResult_Proto(t *testing.T) {
	tests := []struct {
		name string
		in   *BlockSubmissionResult
	}{
		{
			name: "accepted",
			in: &BlockSubmissionResult{
				CandidateID: "c-1",
				BlockHash:   strings.Repeat("7d", 32),
				Height:      2500001,
				Status:      StatusAccepted,
				SubmittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				LatencyMs:   42.25,
			},
		},
		{
			name: "rejected",
			in: &BlockSubmissionResult{
				CandidateID:  "c-2",
				Height:       2500001,
				Status:       StatusRejected,
				ErrorMessage: "Block not accepted",
				SubmittedAt:  time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
				LatencyMs:    3,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.in.ToProto()
			if err != nil {
				t.Fatalf("ToProto() error = %v", err)
			}
			_, hasErr := s.Fields["error_message"]
			if hasErr != (tt.in.ErrorMessage != "") {
				t.Errorf("error_message present = %v", hasErr)
			}

			out, err := BlockSubmissionResultFromProto(s)
			if err != nil {
				t.Fatalf("BlockSubmissionResultFromProto() error = %v", err)
			}
			if diff := cmp.Diff(tt.in, out); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBlockSubmissionResultFromProto_UnknownStatus(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{"status": "duplicate"})
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}
	if _, err := BlockSubmissionResultFromProto(s); err == nil {
		t.Error("BlockSubmissionResultFromProto() should reject unknown statuses")
	}
}

func TestBlockTemplateMessage_Proto(t *testing.T) {
	in := &BlockTemplateMessage{
		JobID:          "job_3",
		Blob:           "0400850d6b0d",
		Height:         3100000,
		Difficulty:     412000000,
		ReservedOffset: 421,
		PrevHash:       "ea531b1af3da7dc71a7f7a304076e74b526655bc2daf83d9b5d69f1bc4555af0",
		CreatedAt:      time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
	}

	s, err := in.ToProto()
	if err != nil {
		t.Fatalf("ToProto() error = %v", err)
	}
	out, err := BlockTemplateFromProto(s)
	if err != nil {
		t.Fatalf("BlockTemplateFromProto() error = %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("template mismatch (-want +got):\n%s", diff)
	}

	noDifficulty, _ := structpb.NewStruct(map[string]any{"job_id": "job_4", "blob": "00"})
	if _, err := BlockTemplateFromProto(noDifficulty); err == nil {
		t.Error("BlockTemplateFromProto() should reject a template without difficulty")
	}
}
