package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kdimtricp/vmood/internal/models"
	"github.com/klauspost/compress/zstd"
)

// encodeFrameLog stores segment logs as zstd compressed JSON.
func encodeFrameLog(segments []models.SegmentLog) ([]byte, error) {
	raw, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("marshal frame log: %w", err)
	}

	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := encoder.Write(raw); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeFrameLog(blob []byte) ([]models.SegmentLog, error) {
	if len(blob) == 0 {
		return []models.SegmentLog{}, nil
	}

	decoder, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	var segments []models.SegmentLog
	if err := json.Unmarshal(raw, &segments); err != nil {
		return nil, fmt.Errorf("unmarshal frame log: %w", err)
	}
	return segments, nil
}
