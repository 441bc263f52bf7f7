package messaging

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Submission status values carried by BlockSubmissionResult
const (
	StatusAccepted = "accepted" // daemon returned a block hash
	StatusRejected = "rejected" // daemon answered and refused the block
	StatusFailed   = "failed"   // daemon unreachable or answered garbage
)

// BlockTemplateMessage is a mining job built from a TurtleCoind block template
type BlockTemplateMessage struct {
	JobID          string
	Blob           string
	Height         uint64
	Difficulty     uint64
	ReservedOffset uint64
	PrevHash       string
	CreatedAt      time.Time
}

// BlockCandidateMessage is a solved block waiting to be submitted to TurtleCoind
type BlockCandidateMessage struct {
	CandidateID string
	BlockBlob   string
	Height      uint64
	Source      string
	FoundAt     time.Time
}

// BlockSubmissionResult is the outcome of one candidate submission
type BlockSubmissionResult struct {
	CandidateID  string
	BlockHash    string
	Height       uint64
	Status       string
	ErrorMessage string
	SubmittedAt  time.Time
	LatencyMs    float64
}

// ChainBlockEvent is published as JSON for every block chainsync stores
type ChainBlockEvent struct {
	Hash         string    `json:"hash"`
	Height       uint64    `json:"height"`
	Timestamp    time.Time `json:"timestamp"`
	Transactions int       `json:"transactions"`
	Source       string    `json:"source"`
}

// ToProto encodes the template as a protobuf Struct
func (m *BlockTemplateMessage) ToProto() (*structpb.Struct, error) {
	createdAt, err := encodeTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"job_id":          m.JobID,
		"blob":            m.Blob,
		"height":          float64(m.Height),
		"difficulty":      float64(m.Difficulty),
		"reserved_offset": float64(m.ReservedOffset),
		"prev_hash":       m.PrevHash,
		"created_at":      createdAt,
	})
}

// BlockTemplateFromProto decodes a template published by jobmanager
func BlockTemplateFromProto(s *structpb.Struct) (*BlockTemplateMessage, error) {
	fields := s.GetFields()
	m := &BlockTemplateMessage{
		JobID:          fields["job_id"].GetStringValue(),
		Blob:           fields["blob"].GetStringValue(),
		Height:         uint64(fields["height"].GetNumberValue()),
		Difficulty:     uint64(fields["difficulty"].GetNumberValue()),
		ReservedOffset: uint64(fields["reserved_offset"].GetNumberValue()),
		PrevHash:       fields["prev_hash"].GetStringValue(),
	}
	if m.Blob == "" || m.Difficulty == 0 {
		return nil, fmt.Errorf("block template %q has no blob or difficulty", m.JobID)
	}
	if v := fields["created_at"].GetStringValue(); v != "" {
		t, err := decodeTime(v)
		if err != nil {
			return nil, fmt.Errorf("block template created_at: %w", err)
		}
		m.CreatedAt = t
	}
	return m, nil
}

// ToProto encodes the candidate as a protobuf Struct
func (m *BlockCandidateMessage) ToProto() (*structpb.Struct, error) {
	foundAt, err := encodeTime(m.FoundAt)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"candidate_id": m.CandidateID,
		"block_blob":   m.BlockBlob,
		"height":       float64(m.Height),
		"source":       m.Source,
		"found_at":     foundAt,
	})
}

// BlockCandidateFromProto decodes a candidate. The blob is the only required field.
func BlockCandidateFromProto(s *structpb.Struct) (*BlockCandidateMessage, error) {
	fields := s.GetFields()
	m := &BlockCandidateMessage{
		CandidateID: fields["candidate_id"].GetStringValue(),
		BlockBlob:   fields["block_blob"].GetStringValue(),
		Height:      uint64(fields["height"].GetNumberValue()),
		Source:      fields["source"].GetStringValue(),
	}
	if m.BlockBlob == "" {
		return nil, fmt.Errorf("block candidate has no block_blob")
	}
	if v := fields["found_at"].GetStringValue(); v != "" {
		t, err := decodeTime(v)
		if err != nil {
			return nil, fmt.Errorf("block candidate found_at: %w", err)
		}
		m.FoundAt = t
	}
	return m, nil
}

// ToProto encodes the result as a protobuf Struct
func (r *BlockSubmissionResult) ToProto() (*structpb.Struct, error) {
	submittedAt, err := encodeTime(r.SubmittedAt)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"candidate_id": r.CandidateID,
		"block_hash":   r.BlockHash,
		"height":       float64(r.Height),
		"status":       r.Status,
		"submitted_at": submittedAt,
		"latency_ms":   r.LatencyMs,
	}
	if r.ErrorMessage != "" {
		fields["error_message"] = r.ErrorMessage
	}
	return structpb.NewStruct(fields)
}

// BlockSubmissionResultFromProto decodes a result published by blocksubmit
func BlockSubmissionResultFromProto(s *structpb.Struct) (*BlockSubmissionResult, error) {
	fields := s.GetFields()
	r := &BlockSubmissionResult{
		CandidateID:  fields["candidate_id"].GetStringValue(),
		BlockHash:    fields["block_hash"].GetStringValue(),
		Height:       uint64(fields["height"].GetNumberValue()),
		Status:       fields["status"].GetStringValue(),
		ErrorMessage: fields["error_message"].GetStringValue(),
		LatencyMs:    fields["latency_ms"].GetNumberValue(),
	}
	switch r.Status {
	case StatusAccepted, StatusRejected, StatusFailed:
	default:
		return nil, fmt.Errorf("unknown submission status %q", r.Status)
	}
	if v := fields["submitted_at"].GetStringValue(); v != "" {
		t, err := decodeTime(v)
		if err != nil {
			return nil, fmt.Errorf("submission result submitted_at: %w", err)
		}
		r.SubmittedAt = t
	}
	return r, nil
}

// encodeTime renders t in the protobuf JSON form of google.protobuf.Timestamp.
// The zero time encodes as an empty string.
func encodeTime(t time.Time) (string, error) {
	if t.IsZero() {
		return "", nil
	}
	ts := timestamppb.New(t)
	if err := ts.CheckValid(); err != nil {
		return "", err
	}
	raw, err := protojson.Marshal(ts)
	if err != nil {
		return "", err
	}
	// protojson renders a JSON string literal
	return string(raw[1 : len(raw)-1]), nil
}

func decodeTime(v string) (time.Time, error) {
	var ts timestamppb.Timestamp
	if err := protojson.Unmarshal([]byte(`"`+v+`"`), &ts); err != nil {
		return time.Time{}, err
	}
	return ts.AsTime(), nil
}
